package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/web3names/resolver/internal/platform/observability"
	"github.com/web3names/resolver/internal/platform/worker"
)

// WarmupProvider pre-populates the cache with data the caller knows it will
// need, typically well-known names resolved at startup.
type WarmupProvider interface {
	// Name returns a human-readable name for logging purposes
	Name() string

	// Warmup pre-populates the cache. It must be idempotent.
	Warmup(ctx context.Context) error
}

// WarmupConfig configures the cache warming behavior.
type WarmupConfig struct {
	// Timeout is the maximum duration to wait for all providers to complete
	Timeout time.Duration

	// Workers bounds how many providers warm concurrently
	Workers int
}

// DefaultWarmupConfig returns sensible defaults for cache warming.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout: 30 * time.Second,
		Workers: 4,
	}
}

// WarmupResult contains the result of warming a single provider.
type WarmupResult struct {
	Provider string
	Err      error
}

// WarmupResults contains the aggregate results of cache warming.
type WarmupResults struct {
	Results   []WarmupResult
	TotalTime time.Duration
	Errors    int
}

// HasErrors returns true if any provider failed during warmup.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

// Warmer runs registered warmup providers through a worker pool.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	config    WarmupConfig
}

// NewWarmer creates a new cache warmer.
func NewWarmer(logger *observability.Logger, config WarmupConfig) *Warmer {
	if config.Workers <= 0 {
		config.Workers = DefaultWarmupConfig().Workers
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultWarmupConfig().Timeout
	}
	return &Warmer{
		logger: logger,
		config: config,
	}
}

// RegisterProvider adds a warmup provider to the warmer.
func (w *Warmer) RegisterProvider(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup executes all registered providers and returns aggregate results.
// A provider failure is logged and counted, never fatal.
func (w *Warmer) Warmup(ctx context.Context) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{
		Results: make([]WarmupResult, 0, len(w.providers)),
	}

	if len(w.providers) == 0 {
		results.TotalTime = time.Since(start)
		return results
	}

	warmupCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	pool := worker.NewPool(warmupCtx, w.config.Workers, len(w.providers))
	for _, provider := range w.providers {
		p := provider
		pool.Submit(worker.Task{
			ID: p.Name(),
			Run: func(taskCtx context.Context) error {
				w.logger.LogDebug(taskCtx, fmt.Sprintf("warming cache: %s", p.Name()))
				return p.Warmup(taskCtx)
			},
		})
	}

collect:
	for i := 0; i < len(w.providers); i++ {
		select {
		case r := <-pool.Results():
			results.Results = append(results.Results, WarmupResult{
				Provider: r.TaskID,
				Err:      r.Err,
			})
			if r.Err != nil {
				results.Errors++
				w.logger.LogWarn(ctx, fmt.Sprintf("cache warmup failed for %s: %v", r.TaskID, r.Err))
			}
		case <-warmupCtx.Done():
			// Whatever has not reported by the deadline counts as failed
			results.Errors += len(w.providers) - i
			w.logger.LogWarn(ctx, fmt.Sprintf("cache warmup timed out with %d providers outstanding",
				len(w.providers)-i))
			break collect
		}
	}
	pool.Close()

	results.TotalTime = time.Since(start)

	if results.Errors > 0 {
		w.logger.LogWarn(ctx, fmt.Sprintf("cache warmup completed with %d/%d errors in %v",
			results.Errors, len(w.providers), results.TotalTime))
	} else {
		w.logger.LogInfo(ctx, fmt.Sprintf("cache warmup completed (%d providers) in %v",
			len(w.providers), results.TotalTime))
	}

	return results
}
