package board

import (
	"context"
	"errors"

	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/store"
)

var ErrStopped = errors.New("board stopped")

// call sends msg and waits for the reply unless the board or ctx goes away.
func call[T any](ctx context.Context, b *Board, msg Msg, reply chan T) (T, error) {
	var zero T
	select {
	case b.inbox <- msg:
	case <-b.ctx.Done():
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-b.ctx.Done():
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (b *Board) Do(ctx context.Context, cmd engine.Command) error {
	reply := make(chan error, 1)
	err, callErr := call(ctx, b, FromClient{Cmd: cmd, Reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

func (b *Board) UndoLast(ctx context.Context) (Result, error) {
	reply := make(chan Result, 1)
	return call(ctx, b, Undo{Reply: reply}, reply)
}

func (b *Board) RedoLast(ctx context.Context) (Result, error) {
	reply := make(chan Result, 1)
	return call(ctx, b, Redo{Reply: reply}, reply)
}

func (b *Board) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	return call(ctx, b, GetState{Reply: reply}, reply)
}

func (b *Board) ImportBackup(ctx context.Context, raw []byte) error {
	reply := make(chan error, 1)
	err, callErr := call(ctx, b, Import{Raw: raw, Reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

func (b *Board) Backup(ctx context.Context, reason string) (store.Backup, error) {
	reply := make(chan BackupReply, 1)
	r, err := call(ctx, b, CreateBackup{Reason: reason, Reply: reply}, reply)
	if err != nil {
		return store.Backup{}, err
	}
	return r.Backup, r.Err
}

func (b *Board) Restore(ctx context.Context, id string) error {
	reply := make(chan error, 1)
	err, callErr := call(ctx, b, RestoreBackup{ID: id, Reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

func (b *Board) ReplaceState(ctx context.Context, s engine.State) error {
	reply := make(chan error, 1)
	err, callErr := call(ctx, b, Replace{State: s, Reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

// Backups lists the stored snapshots without going through the loop; the
// KV store is safe for concurrent use.
func (b *Board) Backups(ctx context.Context) []store.Backup {
	if b.deps.Local == nil {
		return nil
	}
	return b.deps.Local.Backups(ctx)
}

// Leave unregisters a client; it never blocks on a stopped board.
func (b *Board) Leave(clientID string) {
	select {
	case b.inbox <- Leave{ClientID: clientID}:
	case <-b.ctx.Done():
	}
}
