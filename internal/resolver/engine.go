package resolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/web3names/resolver/internal/platform/cache"
	"github.com/web3names/resolver/internal/platform/observability"
	"github.com/web3names/resolver/internal/upstream"
)

// Upstream is the provider the engine fetches uncached names from.
type Upstream interface {
	FetchSingle(ctx context.Context, name string) (*upstream.Record, error)
	FetchBatch(ctx context.Context, names []string) ([]upstream.Record, error)
	SetAPIKey(key string)
}

// Config is the engine's runtime configuration.
type Config struct {
	// APIKey is forwarded to the upstream provider when non-empty
	APIKey string `json:"apiKey,omitempty"`

	// BatchSize is the upper bound on names per upstream batch request
	BatchSize int `json:"batchSize"`

	// CacheMaxSize bounds the number of cached results
	CacheMaxSize int `json:"cacheMaxSize"`

	// CacheTTL is how long a cached result stays valid
	CacheTTL time.Duration `json:"cacheTTL"`

	// MaxConcurrentBatches caps in-flight batch requests
	MaxConcurrentBatches int `json:"maxConcurrentBatches"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:            25,
		CacheMaxSize:         1000,
		CacheTTL:             5 * time.Minute,
		MaxConcurrentBatches: 4,
	}
}

// Update is a partial configuration change. Nil fields are left unchanged.
type Update struct {
	APIKey       *string        `json:"apiKey,omitempty"`
	BatchSize    *int           `json:"batchSize,omitempty"`
	CacheMaxSize *int           `json:"cacheMaxSize,omitempty"`
	CacheTTL     *time.Duration `json:"cacheTTL,omitempty"`
}

// CacheFactory builds the result store. The engine calls it at construction
// and again whenever cache sizing changes.
type CacheFactory func(maxSize int) cache.Store

// EngineConfig wires an Engine's collaborators.
type EngineConfig struct {
	Config   Config
	Upstream Upstream
	NewCache CacheFactory
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   observability.Tracer
}

// Engine orchestrates classify → cache → upstream → cache for single and
// bulk lookups. Engines are safe for concurrent use. Concurrent misses on
// the same key may each call upstream; that duplicate work is accepted
// rather than coalescing in-flight requests.
//
// No upstream failure ever surfaces as an error: transport failures,
// non-success statuses, and malformed responses all degrade to a
// confirmed-unresolved result, which is cached like any other outcome so
// the same bad input does not hammer the provider.
type Engine struct {
	mu    sync.RWMutex // guards cfg and store replacement
	cfg   Config
	store cache.Store

	newCache CacheFactory
	client   Upstream
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   observability.Tracer
	sem      *semaphore.Weighted
}

// NewEngine creates an Engine. Upstream is required; everything else has a
// sensible default.
func NewEngine(ec EngineConfig) *Engine {
	cfg := ec.Config
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.CacheMaxSize <= 0 {
		cfg.CacheMaxSize = def.CacheMaxSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.MaxConcurrentBatches <= 0 {
		cfg.MaxConcurrentBatches = def.MaxConcurrentBatches
	}

	newCache := ec.NewCache
	if newCache == nil {
		newCache = func(maxSize int) cache.Store {
			return cache.NewMemoryCache(maxSize)
		}
	}

	logger := ec.Logger
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}

	tracer := ec.Tracer
	if tracer == nil {
		tracer = observability.NewNoopTracer()
	}

	if ec.Upstream != nil && cfg.APIKey != "" {
		ec.Upstream.SetAPIKey(cfg.APIKey)
	}

	return &Engine{
		cfg:      cfg,
		store:    newCache(cfg.CacheMaxSize),
		newCache: newCache,
		client:   ec.Upstream,
		logger:   logger,
		metrics:  ec.Metrics,
		tracer:   tracer,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentBatches)),
	}
}

// Resolve maps one identifier to a result. It never returns an error;
// anything that cannot be resolved comes back as the zero Result.
func (e *Engine) Resolve(ctx context.Context, input string) Result {
	start := time.Now()
	key := normalize(input)

	ctx, span := e.tracer.StartSpan(ctx, "resolver.Resolve",
		attribute.String("resolver.key", key))
	defer span.End()

	if res, ok := e.cacheGet(ctx, key); ok {
		span.AddEvent("cache hit")
		return res
	}

	kind := Classify(key)
	res := e.resolveMiss(ctx, key, kind)
	e.cacheSet(ctx, key, res)

	if e.metrics != nil {
		e.metrics.RecordResolve(ctx, kind.String(), res.Resolved(), time.Since(start))
	}
	return res
}

// resolveMiss produces the result for an uncached key.
func (e *Engine) resolveMiss(ctx context.Context, key string, kind Kind) Result {
	switch kind {
	case KindAddress:
		// Addresses resolve locally, no network call
		return Result{Address: key, Platform: PlatformEthereum}

	case KindENSName, KindBasename:
		rec, err := e.client.FetchSingle(ctx, key)
		if err != nil {
			// Unreachable provider and unknown name are indistinguishable
			// here on purpose; both become confirmed unresolved
			e.logger.LogDebug(ctx, "single lookup failed", "name", key, "error", err)
			if e.metrics != nil {
				e.metrics.RecordError(ctx, "upstream")
			}
			return Result{}
		}
		if rec == nil || !isAddress(rec.Address) {
			return Result{}
		}
		return Result{
			Address:     strings.ToLower(rec.Address),
			Platform:    platformFor(kind),
			DisplayName: key,
		}

	default:
		return Result{}
	}
}

// ResolveMany resolves a list of identifiers. The returned slice has the
// same length and order as the input, duplicates included. Unique names
// needing upstream work are partitioned into consecutive chunks of at most
// BatchSize and fetched concurrently; chunks fail independently.
func (e *Engine) ResolveMany(ctx context.Context, inputs []string) []Result {
	ctx, span := e.tracer.StartSpan(ctx, "resolver.ResolveMany",
		attribute.Int("resolver.inputs", len(inputs)))
	defer span.End()

	if len(inputs) == 0 {
		return []Result{}
	}

	// Unique normalized keys in first-occurrence order
	normalized := make([]string, len(inputs))
	uniq := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		key := normalize(in)
		normalized[i] = key
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			uniq = append(uniq, key)
		}
	}

	results := make(map[string]Result, len(uniq))
	var pending []string
	for _, key := range uniq {
		if res, ok := e.cacheGet(ctx, key); ok {
			results[key] = res
			continue
		}
		switch kind := Classify(key); kind {
		case KindENSName, KindBasename:
			pending = append(pending, key)
		default:
			// Addresses and unrecognized inputs resolve synchronously
			res := e.resolveMiss(ctx, key, kind)
			e.cacheSet(ctx, key, res)
			results[key] = res
		}
	}

	if len(pending) > 0 {
		e.mu.RLock()
		batchSize := e.cfg.BatchSize
		e.mu.RUnlock()

		var wg sync.WaitGroup
		var resMu sync.Mutex
		for from := 0; from < len(pending); from += batchSize {
			to := from + batchSize
			if to > len(pending) {
				to = len(pending)
			}
			chunk := pending[from:to]

			wg.Add(1)
			go func(chunk []string) {
				defer wg.Done()
				chunkResults := e.resolveChunk(ctx, chunk)
				resMu.Lock()
				for k, v := range chunkResults {
					results[k] = v
				}
				resMu.Unlock()
			}(chunk)
		}
		wg.Wait()

		span.SetAttributes(
			attribute.Int("resolver.pending", len(pending)),
			attribute.Int("resolver.batch_size", batchSize),
		)
	}

	// Reassemble in original input order, duplicates included
	out := make([]Result, len(inputs))
	for i, key := range normalized {
		out[i] = results[key]
	}
	return out
}

// resolveChunk fetches one batch and correlates records back to names by
// case-insensitive identity. A chunk that fails entirely marks every name
// in it as confirmed unresolved.
func (e *Engine) resolveChunk(ctx context.Context, names []string) map[string]Result {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		out := make(map[string]Result, len(names))
		for _, name := range names {
			e.cacheSet(ctx, name, Result{})
			out[name] = Result{}
		}
		return out
	}
	defer e.sem.Release(1)

	if e.metrics != nil {
		e.metrics.RecordBatchChunk(ctx, len(names))
	}

	byIdentity := make(map[string]upstream.Record)
	records, err := e.client.FetchBatch(ctx, names)
	if err != nil {
		e.logger.LogDebug(ctx, "batch lookup failed", "size", len(names), "error", err)
		if e.metrics != nil {
			e.metrics.RecordError(ctx, "upstream")
		}
	} else {
		for _, rec := range records {
			if rec.Identity != "" {
				byIdentity[strings.ToLower(rec.Identity)] = rec
			}
		}
	}

	out := make(map[string]Result, len(names))
	for _, name := range names {
		var res Result
		if rec, ok := byIdentity[name]; ok && isAddress(rec.Address) {
			res = Result{
				Address:     strings.ToLower(rec.Address),
				Platform:    platformFor(Classify(name)),
				DisplayName: name,
			}
		}
		e.cacheSet(ctx, name, res)
		out[name] = res
	}
	return out
}

// Configure applies a partial configuration update. A change to cache max
// size or TTL discards the cache and builds a fresh one; full invalidation
// is deliberate, there is no incremental resize.
func (e *Engine) Configure(ctx context.Context, upd Update) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if upd.APIKey != nil && *upd.APIKey != e.cfg.APIKey {
		e.cfg.APIKey = *upd.APIKey
		if e.client != nil {
			e.client.SetAPIKey(*upd.APIKey)
		}
	}
	if upd.BatchSize != nil && *upd.BatchSize > 0 {
		e.cfg.BatchSize = *upd.BatchSize
	}

	rebuild := false
	if upd.CacheMaxSize != nil && *upd.CacheMaxSize > 0 && *upd.CacheMaxSize != e.cfg.CacheMaxSize {
		e.cfg.CacheMaxSize = *upd.CacheMaxSize
		rebuild = true
	}
	if upd.CacheTTL != nil && *upd.CacheTTL >= 0 && *upd.CacheTTL != e.cfg.CacheTTL {
		e.cfg.CacheTTL = *upd.CacheTTL
		rebuild = true
	}

	if rebuild {
		old := e.store
		e.store = e.newCache(e.cfg.CacheMaxSize)
		if old != nil {
			_ = old.Close()
		}
		e.logger.LogInfo(ctx, "resolution cache rebuilt",
			"max_size", e.cfg.CacheMaxSize,
			"ttl", e.cfg.CacheTTL.String(),
		)
	}
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// ClearCache discards every cached result.
func (e *Engine) ClearCache(ctx context.Context) {
	e.currentStore().Clear(ctx)
	if e.metrics != nil {
		e.metrics.SetCacheSize(ctx, 0)
	}
}

// EvictCache removes one entry, reporting whether it was present.
func (e *Engine) EvictCache(ctx context.Context, key string) bool {
	return e.currentStore().Evict(ctx, normalize(key))
}

// CacheStats reports cache occupancy.
func (e *Engine) CacheStats() cache.Stats {
	return e.currentStore().Stats()
}

// Close releases the cache.
func (e *Engine) Close() error {
	return e.currentStore().Close()
}

func (e *Engine) currentStore() cache.Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

func (e *Engine) cacheGet(ctx context.Context, key string) (Result, bool) {
	val, err := e.currentStore().Get(ctx, key)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordCacheMiss(ctx)
		}
		return Result{}, false
	}

	res, ok := val.(Result)
	if !ok {
		// A foreign value under our key (for example an L2 payload decoded
		// without the typed decoder) is treated as a miss
		if e.metrics != nil {
			e.metrics.RecordCacheMiss(ctx)
		}
		return Result{}, false
	}

	if e.metrics != nil {
		e.metrics.RecordCacheHit(ctx)
	}
	return res, true
}

func (e *Engine) cacheSet(ctx context.Context, key string, res Result) {
	e.mu.RLock()
	ttl := e.cfg.CacheTTL
	store := e.store
	e.mu.RUnlock()

	if err := store.Set(ctx, key, res, ttl); err != nil {
		e.logger.LogWarn(ctx, "cache write failed", "key", key, "error", err)
	}
	if e.metrics != nil {
		e.metrics.SetCacheSize(ctx, store.Stats().Size)
	}
}
