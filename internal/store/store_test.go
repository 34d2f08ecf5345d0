package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/engine"
)

var at = time.Date(2026, 7, 4, 21, 5, 0, 0, time.UTC)

func TestBackupFilename(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Catan Scoreboard", "Catan_Scoreboard_backup_202607042105.json"},
		{"  Partida   Ñandú (final)! ", "Partida_Nandu_(final)_backup_202607042105.json"},
		{"", "Catan_Scoreboard_backup_202607042105.json"},
		{"!!!", "Catan_Scoreboard_backup_202607042105.json"},
		{"A very long board title that keeps going and going", "A_very_long_board_title_that_keeps_going_backup_202607042105.json"},
	}
	for _, tc := range cases {
		t.Run(tc.title, func(t *testing.T) {
			assert.Equal(t, tc.want, BackupFilename(tc.title, at))
		})
	}
}

func TestLocalPersistAndLoad(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	local := NewLocal(kv, "", zap.NewNop())

	assert.Nil(t, local.Load(ctx))

	s := engine.NewEmptyState()
	s.Title = "Saved"
	require.True(t, local.Persist(ctx, s))

	raw := local.Load(ctx)
	require.NotNil(t, raw)
	assert.Equal(t, "Saved", engine.Import(engine.NewEmptyState(), raw).Title)

	require.NoError(t, kv.Set(ctx, StateKey, []byte("{not json")))
	assert.Nil(t, local.Load(ctx))
}

func TestLocalPersistReportsQuotaFailure(t *testing.T) {
	kv := NewMemoryKV()
	kv.Quota = 64
	local := NewLocal(kv, "", zap.NewNop())

	assert.False(t, local.Persist(context.Background(), engine.NewEmptyState()))
}

func TestLocalNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	a := NewLocal(kv, "", nil)
	b := NewLocal(kv, "user-1", nil)

	require.True(t, b.Persist(ctx, engine.NewEmptyState()))
	assert.Nil(t, a.Load(ctx))
	assert.NotNil(t, b.Load(ctx))
}

func TestBackupsAreNewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(NewMemoryKV(), "", zap.NewNop())

	s := engine.NewEmptyState()
	s.Backup.MaxSnapshots = 3
	for i := 0; i < 5; i++ {
		s.Title = fmt.Sprintf("game %d", i)
		_, ok := local.AddBackup(ctx, s, ReasonManual, at.Add(time.Duration(i)*time.Minute))
		require.True(t, ok)
	}

	list := local.Backups(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "game 4", list[0].Title)
	assert.Equal(t, "game 2", list[2].Title)

	found, err := local.FindBackup(ctx, list[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "game 3", engine.Import(engine.NewEmptyState(), found.Payload).Title)

	_, err = local.FindBackup(ctx, "missing")
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestSQLiteKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv, err := NewSQLiteKV(":memory:")
	require.NoError(t, err)
	defer kv.Close()

	_, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", []byte("one")))
	require.NoError(t, kv.Set(ctx, "k", []byte("two")))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", string(v))

	require.NoError(t, kv.Delete(ctx, "k"))
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReconcileRemoteWins(t *testing.T) {
	ctx := context.Background()
	device := NewLocal(NewMemoryKV(), "", nil)
	remote := NewMemoryRemote()
	g := NewGateway(device, remote, nil, nil)

	local := engine.NewEmptyState()
	local.Title = "device"
	require.True(t, device.Persist(ctx, local))

	cloud := engine.NewEmptyState()
	cloud.Title = "cloud"
	require.NoError(t, g.SaveRemote(ctx, "u1", cloud))

	s, src, err := g.Reconcile(ctx, "u1", engine.NewEmptyState())
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	assert.Equal(t, "cloud", s.Title)
}

func TestReconcileUploadsLocalWhenRemoteMissing(t *testing.T) {
	ctx := context.Background()
	device := NewLocal(NewMemoryKV(), "", nil)
	remote := NewMemoryRemote()
	g := NewGateway(device, remote, nil, nil)

	local := engine.NewEmptyState()
	local.Title = "device"
	require.True(t, device.Persist(ctx, local))

	s, src, err := g.Reconcile(ctx, "u1", engine.NewEmptyState())
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
	assert.Equal(t, "device", s.Title)

	_, uploaded, err := remote.LoadGame(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, uploaded)
}

func TestReconcileSignedOutAndEmpty(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewLocal(NewMemoryKV(), "", nil), NewMemoryRemote(), nil, nil)
	base := engine.NewEmptyState()

	s, src, err := g.Reconcile(ctx, "", base)
	require.NoError(t, err)
	assert.Equal(t, SourceNone, src)
	assert.Equal(t, base, s)

	_, src, err = g.Reconcile(ctx, "u2", base)
	require.NoError(t, err)
	assert.Equal(t, SourceNone, src)
}

func TestReconcileSurfacesRemoteErrors(t *testing.T) {
	remote := NewMemoryRemote()
	remote.Err = errors.New("offline")
	g := NewGateway(NewLocal(NewMemoryKV(), "", nil), remote, nil, nil)

	_, _, err := g.Reconcile(context.Background(), "u1", engine.NewEmptyState())
	assert.ErrorIs(t, err, remote.Err)
}

func TestQueueRunsTasksAndSurvivesFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(8, zap.NewNop())
	go q.Run(ctx)

	var ran []string
	require.True(t, q.Submit(Task{Name: "fail", Fn: func(context.Context) error { return errors.New("boom") }}))
	require.True(t, q.Submit(Task{Name: "ok", Fn: func(context.Context) error { ran = append(ran, "ok"); return nil }}))

	flushCtx, flushCancel := context.WithTimeout(ctx, time.Second)
	defer flushCancel()
	require.NoError(t, q.Flush(flushCtx))
	assert.Equal(t, []string{"ok"}, ran)
}

func TestQueueSubmitNeverBlocks(t *testing.T) {
	q := NewQueue(1, zap.NewNop())
	noop := Task{Name: "noop", Fn: func(context.Context) error { return nil }}

	assert.True(t, q.Submit(noop))
	assert.False(t, q.Submit(noop))
}

func TestSaveRemoteAsyncGoesThroughQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := NewMemoryRemote()
	q := NewQueue(8, nil)
	go q.Run(ctx)
	g := NewGateway(NewLocal(NewMemoryKV(), "", nil), remote, q, nil)

	g.SaveRemoteAsync("u1", engine.NewEmptyState())
	flushCtx, flushCancel := context.WithTimeout(ctx, time.Second)
	defer flushCancel()
	require.NoError(t, q.Flush(flushCtx))

	_, ok, err := remote.LoadGame(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}
