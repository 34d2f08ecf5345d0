package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/engine"
)

type Source string

const (
	SourceNone   Source = "none"
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Gateway combines the device-local record, the remote per-user document and
// the background queue used for fire-and-forget cloud saves.
type Gateway struct {
	device *Local
	remote Remote
	queue  *Queue
	log    *zap.Logger
}

func NewGateway(device *Local, remote Remote, queue *Queue, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{device: device, remote: remote, queue: queue, log: log}
}

// Reconcile picks the starting document on sign-in: the remote copy wins when
// present, otherwise the device copy is imported and uploaded once. A
// signed-out caller gets base back untouched.
func (g *Gateway) Reconcile(ctx context.Context, uid string, base engine.State) (engine.State, Source, error) {
	if uid == "" || g.remote == nil {
		return base, SourceNone, nil
	}

	doc, ok, err := g.remote.LoadGame(ctx, uid)
	if err != nil {
		return base, SourceNone, fmt.Errorf("reconcile %s: %w", uid, err)
	}
	if ok {
		return engine.Import(base, doc), SourceRemote, nil
	}

	local := g.device.Load(ctx)
	if local == nil {
		return base, SourceNone, nil
	}
	s := engine.Import(base, local)
	if err := g.SaveRemote(ctx, uid, s); err != nil {
		g.log.Warn("initial cloud upload failed", zap.String("user", uid), zap.Error(err))
	}
	return s, SourceLocal, nil
}

func (g *Gateway) SaveRemote(ctx context.Context, uid string, s engine.State) error {
	raw, err := engine.Marshal(s)
	if err != nil {
		return err
	}
	return g.remote.SaveGame(ctx, uid, raw)
}

// SaveRemoteAsync queues a cloud save; it never blocks the caller.
func (g *Gateway) SaveRemoteAsync(uid string, s engine.State) {
	if uid == "" || g.remote == nil || g.queue == nil {
		return
	}
	snap := s.Clone()
	g.queue.Submit(Task{
		Name: "cloud save " + uid,
		Fn: func(ctx context.Context) error {
			return g.SaveRemote(ctx, uid, snap)
		},
	})
}
