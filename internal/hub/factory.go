package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/board"
	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/store"
)

type BoardDeps struct {
	KV           store.KV
	Gateway      *store.Gateway
	Queue        *store.Queue
	Results      *store.Queue
	Recorder     board.Recorder
	Log          *zap.Logger
	TickInterval time.Duration
}

// NewFactory builds boards whose local record is namespaced by owner. The
// stored document, if any, is imported over a fresh state.
func NewFactory(d BoardDeps) Factory {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return func(ctx context.Context, owner string) *board.Board {
		local := store.NewLocal(d.KV, owner, d.Log)
		initial := engine.NewEmptyState()
		if raw := local.Load(ctx); raw != nil {
			initial = engine.Import(initial, raw)
		}
		d.Log.Debug("board opened", zap.String("owner", owner), zap.String("title", initial.Title))
		return board.New(ctx, owner, initial, board.Deps{
			Local:        local,
			Gateway:      d.Gateway,
			Queue:        d.Queue,
			Results:      d.Results,
			Recorder:     d.Recorder,
			Log:          d.Log,
			TickInterval: d.TickInterval,
		})
	}
}
