package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/web3names/resolver/internal/upstream"
)

// mockUpstream is a scriptable Upstream that records every call
type mockUpstream struct {
	mu          sync.Mutex
	singleCalls []string
	batchCalls  [][]string
	apiKey      string

	// addresses maps a name to the address its record reports
	addresses map[string]string

	singleErr error
	batchErr  error

	// batchErrFor fails only chunks containing this name
	batchErrFor string
}

func newMockUpstream() *mockUpstream {
	return &mockUpstream{addresses: make(map[string]string)}
}

func (m *mockUpstream) FetchSingle(ctx context.Context, name string) (*upstream.Record, error) {
	m.mu.Lock()
	m.singleCalls = append(m.singleCalls, name)
	m.mu.Unlock()

	if m.singleErr != nil {
		return nil, m.singleErr
	}
	addr, ok := m.addresses[name]
	if !ok {
		return nil, nil
	}
	return &upstream.Record{Identity: name, Address: addr}, nil
}

func (m *mockUpstream) FetchBatch(ctx context.Context, names []string) ([]upstream.Record, error) {
	m.mu.Lock()
	m.batchCalls = append(m.batchCalls, append([]string(nil), names...))
	m.mu.Unlock()

	if m.batchErr != nil {
		return nil, m.batchErr
	}
	for _, name := range names {
		if m.batchErrFor != "" && name == m.batchErrFor {
			return nil, errors.New("chunk failed")
		}
	}

	var records []upstream.Record
	for _, name := range names {
		if addr, ok := m.addresses[name]; ok {
			// Upper-case the identity to exercise case-insensitive matching
			records = append(records, upstream.Record{
				Identity: strings.ToUpper(name),
				Address:  addr,
			})
		}
	}
	return records, nil
}

func (m *mockUpstream) SetAPIKey(key string) {
	m.mu.Lock()
	m.apiKey = key
	m.mu.Unlock()
}

func (m *mockUpstream) singleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.singleCalls)
}

func (m *mockUpstream) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batchCalls)
}

func newTestEngine(t *testing.T, cfg Config, up Upstream) *Engine {
	t.Helper()
	engine := NewEngine(EngineConfig{
		Config:   cfg,
		Upstream: up,
	})
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

const testAddr = "0x1234567890abcdef1234567890abcdef12345678"

func TestResolve_AddressFastPath(t *testing.T) {
	up := newMockUpstream()
	engine := newTestEngine(t, Config{}, up)

	got := engine.Resolve(context.Background(), "  0xABCDEF1234567890ABCDEF1234567890ABCDEF12  ")

	want := Result{
		Address:  "0xabcdef1234567890abcdef1234567890abcdef12",
		Platform: PlatformEthereum,
	}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
	if got.DisplayName != "" {
		t.Errorf("address result should have no display name, got %q", got.DisplayName)
	}
	if up.singleCount() != 0 || up.batchCount() != 0 {
		t.Errorf("address resolution must not call upstream, got %d single %d batch",
			up.singleCount(), up.batchCount())
	}
}

func TestResolve_ENSName(t *testing.T) {
	up := newMockUpstream()
	up.addresses["vitalik.eth"] = testAddr
	engine := newTestEngine(t, Config{}, up)

	got := engine.Resolve(context.Background(), "Vitalik.ETH")

	want := Result{
		Address:     testAddr,
		Platform:    PlatformENS,
		DisplayName: "vitalik.eth",
	}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolve_Basename(t *testing.T) {
	up := newMockUpstream()
	up.addresses["jesse.base.eth"] = testAddr
	engine := newTestEngine(t, Config{}, up)

	got := engine.Resolve(context.Background(), "jesse.base.eth")

	if got.Platform != PlatformBasenames {
		t.Errorf("platform = %q, want %q", got.Platform, PlatformBasenames)
	}
	if got.Address != testAddr {
		t.Errorf("address = %q, want %q", got.Address, testAddr)
	}
}

func TestResolve_Unrecognized(t *testing.T) {
	up := newMockUpstream()
	engine := newTestEngine(t, Config{}, up)

	got := engine.Resolve(context.Background(), "not-a-name")

	if got != (Result{}) {
		t.Errorf("Resolve() = %+v, want zero result", got)
	}
	if up.singleCount() != 0 {
		t.Errorf("unrecognized input must not call upstream, got %d calls", up.singleCount())
	}
}

func TestResolve_Idempotent(t *testing.T) {
	up := newMockUpstream()
	up.addresses["vitalik.eth"] = testAddr
	engine := newTestEngine(t, Config{}, up)

	first := engine.Resolve(context.Background(), "vitalik.eth")
	second := engine.Resolve(context.Background(), "vitalik.eth")

	if first != second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if up.singleCount() != 1 {
		t.Errorf("expected 1 upstream call, got %d", up.singleCount())
	}
}

func TestResolve_FailureCachedAsUnresolved(t *testing.T) {
	up := newMockUpstream()
	up.singleErr = errors.New("HTTP 404")
	engine := newTestEngine(t, Config{}, up)

	got := engine.Resolve(context.Background(), "ghost.base.eth")
	if got != (Result{}) {
		t.Errorf("Resolve() = %+v, want zero result", got)
	}

	// Second call is served from cache, no further network
	engine.Resolve(context.Background(), "ghost.base.eth")
	if up.singleCount() != 1 {
		t.Errorf("expected 1 upstream call, got %d", up.singleCount())
	}
}

func TestResolve_RecordWithoutAddress(t *testing.T) {
	up := newMockUpstream()
	up.addresses["bad.eth"] = "not-an-address"
	engine := newTestEngine(t, Config{}, up)

	got := engine.Resolve(context.Background(), "bad.eth")
	if got != (Result{}) {
		t.Errorf("record with invalid address should resolve to zero result, got %+v", got)
	}
}

func TestResolveMany_OrderAndDuplicates(t *testing.T) {
	up := newMockUpstream()
	up.addresses["a.eth"] = testAddr
	up.addresses["b.eth"] = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	engine := newTestEngine(t, Config{BatchSize: 10}, up)

	results := engine.ResolveMany(context.Background(), []string{"a.eth", "b.eth", "a.eth"})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0] != results[2] {
		t.Errorf("duplicate inputs must yield equal results: %+v vs %+v", results[0], results[2])
	}
	if results[0].Address != testAddr {
		t.Errorf("results[0].Address = %q, want %q", results[0].Address, testAddr)
	}
	if results[1].Address != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("results[1].Address = %q", results[1].Address)
	}

	if up.batchCount() != 1 {
		t.Fatalf("expected exactly 1 batch call, got %d", up.batchCount())
	}
	call := up.batchCalls[0]
	if len(call) != 2 || call[0] != "a.eth" || call[1] != "b.eth" {
		t.Errorf("batch call = %v, want [a.eth b.eth]", call)
	}
}

func TestResolveMany_ChunkCount(t *testing.T) {
	up := newMockUpstream()
	names := []string{"a.eth", "b.eth", "c.eth", "d.eth", "e.eth"}
	for _, n := range names {
		up.addresses[n] = testAddr
	}
	engine := newTestEngine(t, Config{BatchSize: 2}, up)

	engine.ResolveMany(context.Background(), names)

	// ceil(5/2) = 3 chunks
	if up.batchCount() != 3 {
		t.Errorf("expected 3 batch calls, got %d", up.batchCount())
	}
}

func TestResolveMany_MixedKinds(t *testing.T) {
	up := newMockUpstream()
	up.addresses["a.eth"] = testAddr
	engine := newTestEngine(t, Config{BatchSize: 10}, up)

	results := engine.ResolveMany(context.Background(), []string{
		testAddr,
		"a.eth",
		"garbage",
	})

	if results[0].Platform != PlatformEthereum {
		t.Errorf("results[0].Platform = %q, want ethereum", results[0].Platform)
	}
	if results[1].Platform != PlatformENS {
		t.Errorf("results[1].Platform = %q, want ens", results[1].Platform)
	}
	if results[2] != (Result{}) {
		t.Errorf("results[2] = %+v, want zero", results[2])
	}

	// The address and the garbage input resolve locally
	if up.batchCount() != 1 || len(up.batchCalls[0]) != 1 {
		t.Errorf("expected one single-name batch, got %v", up.batchCalls)
	}
}

func TestResolveMany_PartialChunkFailure(t *testing.T) {
	up := newMockUpstream()
	up.addresses["a.eth"] = testAddr
	up.addresses["b.eth"] = testAddr
	up.addresses["c.eth"] = testAddr
	up.batchErrFor = "c.eth"
	engine := newTestEngine(t, Config{BatchSize: 2}, up)

	results := engine.ResolveMany(context.Background(), []string{"a.eth", "b.eth", "c.eth"})

	// First chunk [a b] succeeds, second chunk [c] fails entirely
	if !results[0].Resolved() || !results[1].Resolved() {
		t.Errorf("chunk failure must not affect other chunks: %+v", results[:2])
	}
	if results[2] != (Result{}) {
		t.Errorf("failed chunk names must be unresolved, got %+v", results[2])
	}
}

func TestResolveMany_CachedEntriesSkipUpstream(t *testing.T) {
	up := newMockUpstream()
	up.addresses["a.eth"] = testAddr
	engine := newTestEngine(t, Config{BatchSize: 10}, up)

	engine.Resolve(context.Background(), "a.eth")
	engine.ResolveMany(context.Background(), []string{"a.eth"})

	if up.singleCount() != 1 || up.batchCount() != 0 {
		t.Errorf("cached name resolved again: %d single, %d batch",
			up.singleCount(), up.batchCount())
	}
}

func TestResolveMany_Empty(t *testing.T) {
	engine := newTestEngine(t, Config{}, newMockUpstream())

	results := engine.ResolveMany(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected empty result list, got %d entries", len(results))
	}
}

func TestCacheManagement(t *testing.T) {
	up := newMockUpstream()
	up.addresses["a.eth"] = testAddr
	engine := newTestEngine(t, Config{CacheMaxSize: 50}, up)
	ctx := context.Background()

	engine.Resolve(ctx, "a.eth")
	engine.Resolve(ctx, "garbage")

	stats := engine.CacheStats()
	if stats.Size != 2 {
		t.Errorf("stats.Size = %d, want 2", stats.Size)
	}
	if stats.MaxSize != 50 {
		t.Errorf("stats.MaxSize = %d, want 50", stats.MaxSize)
	}

	if !engine.EvictCache(ctx, "a.eth") {
		t.Error("EvictCache should report true for a present key")
	}
	if engine.EvictCache(ctx, "a.eth") {
		t.Error("EvictCache should report false for an absent key")
	}

	engine.ClearCache(ctx)
	if got := engine.CacheStats().Size; got != 0 {
		t.Errorf("size after clear = %d, want 0", got)
	}

	// Evicted name needs a fresh upstream call
	engine.Resolve(ctx, "a.eth")
	if up.singleCount() != 2 {
		t.Errorf("expected 2 upstream calls after eviction, got %d", up.singleCount())
	}
}

func TestConfigure_APIKeyPropagates(t *testing.T) {
	up := newMockUpstream()
	engine := newTestEngine(t, Config{}, up)

	key := "secret"
	engine.Configure(context.Background(), Update{APIKey: &key})

	if up.apiKey != "secret" {
		t.Errorf("upstream api key = %q, want %q", up.apiKey, "secret")
	}
	if engine.Config().APIKey != "secret" {
		t.Errorf("engine config api key = %q", engine.Config().APIKey)
	}
}

func TestConfigure_CacheRebuildOnSizing(t *testing.T) {
	up := newMockUpstream()
	up.addresses["a.eth"] = testAddr
	engine := newTestEngine(t, Config{CacheMaxSize: 100}, up)
	ctx := context.Background()

	engine.Resolve(ctx, "a.eth")
	if engine.CacheStats().Size != 1 {
		t.Fatal("expected one cached entry")
	}

	newSize := 10
	engine.Configure(ctx, Update{CacheMaxSize: &newSize})

	stats := engine.CacheStats()
	if stats.Size != 0 {
		t.Errorf("cache should be empty after rebuild, size = %d", stats.Size)
	}
	if stats.MaxSize != 10 {
		t.Errorf("stats.MaxSize = %d, want 10", stats.MaxSize)
	}

	// Prior entries are gone, resolution goes upstream again
	engine.Resolve(ctx, "a.eth")
	if up.singleCount() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", up.singleCount())
	}
}

func TestConfigure_NoRebuildWithoutSizingChange(t *testing.T) {
	up := newMockUpstream()
	up.addresses["a.eth"] = testAddr
	engine := newTestEngine(t, Config{}, up)
	ctx := context.Background()

	engine.Resolve(ctx, "a.eth")

	bs := 7
	engine.Configure(ctx, Update{BatchSize: &bs})

	if engine.CacheStats().Size != 1 {
		t.Error("batch size change must not discard the cache")
	}
	if engine.Config().BatchSize != 7 {
		t.Errorf("batch size = %d, want 7", engine.Config().BatchSize)
	}
}

func TestResolve_TTLExpiryAllowsFreshAttempt(t *testing.T) {
	up := newMockUpstream()
	up.addresses["a.eth"] = testAddr
	engine := newTestEngine(t, Config{CacheTTL: 20 * time.Millisecond}, up)
	ctx := context.Background()

	engine.Resolve(ctx, "a.eth")
	time.Sleep(40 * time.Millisecond)
	engine.Resolve(ctx, "a.eth")

	if up.singleCount() != 2 {
		t.Errorf("expected a fresh upstream call after TTL expiry, got %d", up.singleCount())
	}
}
