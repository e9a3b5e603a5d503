package resolver

import (
	"context"
	"fmt"
)

// Warmup pre-resolves a fixed set of names so they are served from cache
// immediately after startup. Implements cache.WarmupProvider.
type Warmup struct {
	engine *Engine
	names  []string
}

// NewWarmupProvider returns a warmup provider that bulk-resolves names
// through the engine.
func NewWarmupProvider(engine *Engine, names []string) *Warmup {
	return &Warmup{engine: engine, names: names}
}

func (w *Warmup) Name() string {
	return fmt.Sprintf("resolver(%d names)", len(w.names))
}

// Warmup resolves every configured name once. Unresolvable names are cached
// as unresolved, which is still useful warmth.
func (w *Warmup) Warmup(ctx context.Context) error {
	if len(w.names) == 0 {
		return nil
	}
	w.engine.ResolveMany(ctx, w.names)
	return ctx.Err()
}
