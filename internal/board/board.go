package board

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/profile"
	"github.com/whnb773/catan-scoreboard/internal/store"
	"github.com/whnb773/catan-scoreboard/internal/undo"
)

var ErrBackupFailed = errors.New("backup could not be saved")
var ErrNoStorage = errors.New("board has no local storage")

const DefaultTickInterval = 250 * time.Millisecond

const (
	LabelImport  = "Import backup"
	LabelRestore = "Restore snapshot"
)

const NoticeResultNotRecorded = "Game result could not be recorded"


type Msg interface{ isBoardMsg() }

// FromClient applies one command. Reply, when set, receives the Apply error.
type FromClient struct {
	Cmd   engine.Command
	Reply chan error
}

type Undo struct{ Reply chan Result }

type Redo struct{ Reply chan Result }

type Result struct {
	Label string
	OK    bool
}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

type Leave struct{ ClientID string }

type GetState struct {
	Reply chan View
}

// Import replaces the board with a user-supplied backup document.
type Import struct {
	Raw   []byte
	Reply chan error
}

type CreateBackup struct {
	Reason string
	Reply  chan BackupReply
}

type BackupReply struct {
	Backup store.Backup
	Err    error
}

type RestoreBackup struct {
	ID    string
	Reply chan error
}

// Replace swaps in a reconciled document and clears undo/redo, so history
// never steps back into the document that was replaced.
type Replace struct {
	State engine.State
	Reply chan error
}

type Shutdown struct{}

func (FromClient) isBoardMsg()    {}
func (Undo) isBoardMsg()          {}
func (Redo) isBoardMsg()          {}
func (Join) isBoardMsg()          {}
func (Leave) isBoardMsg()         {}
func (GetState) isBoardMsg()      {}
func (Import) isBoardMsg()        {}
func (CreateBackup) isBoardMsg()  {}
func (RestoreBackup) isBoardMsg() {}
func (Replace) isBoardMsg()       {}
func (Shutdown) isBoardMsg()      {}

type Snapshot struct {
	Version   int
	State     engine.State
	CanUndo   bool
	CanRedo   bool
	UndoLabel string
	Events    []engine.Event
	Notice    string
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
	UndoLen    int
	RedoLen    int
}

// Recorder receives finalized games for signed-in owners.
type Recorder interface {
	RecordFinishedGame(ctx context.Context, res engine.GameResult, hostID string) (profile.GameRecord, error)
}

// Queue takes cloud saves; Results takes finished-game records and defaults to Queue.
type Deps struct {
	Local        *store.Local
	Gateway      *store.Gateway
	Queue        *store.Queue
	Results      *store.Queue
	Recorder     Recorder
	Log          *zap.Logger
	Dice         func() (int, int)
	Now          func() time.Time
	TickInterval time.Duration
}

func rollDie() (int, int) {
	return rand.IntN(6) + 1, rand.IntN(6) + 1
}

// Board owns one scoreboard. Every mutation goes through its inbox and is
// processed to completion by the loop goroutine.
type Board struct {
	owner    string
	inbox    chan Msg
	state    engine.State
	version  int
	history  *undo.History
	clients  map[string]chan Snapshot
	deps     Deps
	log      *zap.Logger
	lastTick time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

// New starts a board for owner ("" for an anonymous device board).
func New(parent context.Context, owner string, initial engine.State, deps Deps) *Board {
	ctx, cancel := context.WithCancel(parent)
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Dice == nil {
		deps.Dice = rollDie
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = DefaultTickInterval
	}
	if deps.Results == nil {
		deps.Results = deps.Queue
	}

	b := &Board{
		owner:   owner,
		inbox:   make(chan Msg, 64),
		state:   initial,
		history: undo.New(),
		clients: make(map[string]chan Snapshot),
		deps:    deps,
		log:     deps.Log.With(zap.String("board", ownerLabel(owner))),
		ctx:     ctx,
		cancel:  cancel,
	}
	go b.loop()
	return b
}

func ownerLabel(owner string) string {
	if owner == "" {
		return "local"
	}
	return owner
}

// Expose the inbox so the HTTP and websocket layers can send messages.
func (b *Board) Inbox() chan<- Msg { return b.inbox }

func (b *Board) Owner() string { return b.owner }

func (b *Board) Done() <-chan struct{} { return b.ctx.Done() }

func (b *Board) loop() {
	ticker := time.NewTicker(b.deps.TickInterval)
	defer ticker.Stop()
	b.lastTick = b.deps.Now()

	for {
		select {
		case <-b.ctx.Done():
			b.shutdown()
			return

		case <-ticker.C:
			b.tick()

		case m := <-b.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				b.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- b.snapshot(nil, "")

			case Leave:
				delete(b.clients, msg.ClientID)

			case FromClient:
				err := b.apply(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case Undo:
				st, label, ok := b.history.Undo(b.state)
				if ok {
					b.commit(st, nil, "Undone: "+label)
				}
				msg.Reply <- Result{Label: label, OK: ok}

			case Redo:
				st, label, ok := b.history.Redo(b.state)
				if ok {
					b.commit(st, nil, "Redone")
				}
				msg.Reply <- Result{Label: label, OK: ok}

			case Import:
				msg.Reply <- b.importDoc(msg.Raw, LabelImport, "Backup imported")

			case CreateBackup:
				bk, err := b.backup(msg.Reason)
				msg.Reply <- BackupReply{Backup: bk, Err: err}

			case RestoreBackup:
				msg.Reply <- b.restore(msg.ID)

			case Replace:
				b.history.Reset()
				b.commit(msg.State, nil, "")
				msg.Reply <- nil

			case GetState:
				msg.Reply <- View{
					Version:    b.version,
					NumClients: len(b.clients),
					State:      b.state,
					UndoLen:    b.history.UndoLen(),
					RedoLen:    b.history.RedoLen(),
				}

			case Shutdown:
				b.shutdown()
				return
			}
		}
	}
}

func (b *Board) apply(cmd engine.Command) error {
	if cmd.At.IsZero() {
		cmd.At = b.deps.Now()
	}
	if cmd.Type == engine.CmdRollDice && cmd.Die1 == 0 && cmd.Die2 == 0 {
		cmd.Die1, cmd.Die2 = b.deps.Dice()
	}

	label, snap := engine.Describe(b.state, cmd)
	pre := b.state
	events, next, err := engine.Apply(b.state, cmd)
	if err != nil {
		return err
	}
	if snap {
		b.history.Push(label, pre)
	}
	if cmd.Type == engine.CmdTogglePause || cmd.Type == engine.CmdStartTimer {
		b.lastTick = b.deps.Now()
	}
	b.commit(next, events, noticeFor(next, events))
	b.afterEvents(next, events)
	return nil
}

func (b *Board) tick() {
	now := b.deps.Now()
	elapsed := now.Sub(b.lastTick).Milliseconds()
	b.lastTick = now
	if !b.state.Timer.Running || b.state.Timer.Paused || elapsed <= 0 {
		return
	}
	_, next, err := engine.Apply(b.state, engine.Command{Type: engine.CmdTick, Value: int(elapsed), At: now})
	if err != nil {
		return
	}
	b.state = next
	b.version++
	if b.deps.Local != nil {
		b.deps.Local.Persist(b.ctx, b.state)
	}
	b.broadcast(b.snapshot(nil, ""))
}

// commit installs next, autosaves it and broadcasts it. A failed local save
// is reported to clients but the in-memory state stays authoritative.
func (b *Board) commit(next engine.State, events []engine.Event, notice string) {
	b.state = next
	b.version++

	if b.deps.Local != nil && !b.deps.Local.Persist(b.ctx, b.state) {
		b.log.Warn("local save failed", zap.Int("version", b.version))
		notice = joinNotice(notice, "Local save failed")
	}
	if b.owner != "" && b.deps.Gateway != nil {
		b.deps.Gateway.SaveRemoteAsync(b.owner, b.state)
	}
	b.broadcast(b.snapshot(events, notice))
}

func (b *Board) afterEvents(s engine.State, events []engine.Event) {
	ev, ok := engine.FindEvent(events, engine.EvtGameCompleted)
	if !ok || ev.Result == nil {
		return
	}
	if s.Backup.AutoSnapshotOnEnd && b.deps.Local != nil {
		if _, ok := b.deps.Local.AddBackup(b.ctx, s, store.ReasonAutoOnEnd, b.deps.Now()); !ok {
			b.broadcast(b.snapshot(nil, "Snapshot failed"))
		}
	}
	if b.owner == "" || b.deps.Recorder == nil || b.deps.Results == nil {
		return
	}
	res := *ev.Result
	owner := b.owner
	queued := b.deps.Results.Submit(store.Task{
		Name: "record game " + owner,
		Fn: func(ctx context.Context) error {
			_, err := b.deps.Recorder.RecordFinishedGame(ctx, res, owner)
			return err
		},
	})
	if !queued {
		b.log.Error("game result dropped",
			zap.Int("winner", res.WinnerIdx),
			zap.Int("margin", res.Margin),
			zap.Int("rolls", res.TotalRolls))
		b.broadcast(b.snapshot(nil, NoticeResultNotRecorded))
	}
}

func (b *Board) importDoc(raw []byte, label, notice string) error {
	if b.state.Timer.Paused {
		return engine.ErrPaused
	}
	if err := engine.ValidateBackup(raw); err != nil {
		return err
	}
	b.history.Push(label, b.state)
	b.commit(engine.Import(b.state, raw), nil, notice)
	return nil
}

func (b *Board) backup(reason string) (store.Backup, error) {
	if b.state.Timer.Paused {
		return store.Backup{}, engine.ErrPaused
	}
	if b.deps.Local == nil {
		return store.Backup{}, ErrNoStorage
	}
	if reason == "" {
		reason = store.ReasonManual
	}
	bk, ok := b.deps.Local.AddBackup(b.ctx, b.state, reason, b.deps.Now())
	if !ok {
		return store.Backup{}, ErrBackupFailed
	}
	return bk, nil
}

func (b *Board) restore(id string) error {
	if b.deps.Local == nil {
		return ErrNoStorage
	}
	bk, err := b.deps.Local.FindBackup(b.ctx, id)
	if err != nil {
		return err
	}
	return b.importDoc(bk.Payload, LabelRestore, "Snapshot restored")
}

func (b *Board) snapshot(events []engine.Event, notice string) Snapshot {
	label, _ := b.history.Peek()
	return Snapshot{
		Version:   b.version,
		State:     b.state,
		CanUndo:   b.history.UndoLen() > 0,
		CanRedo:   b.history.RedoLen() > 0,
		UndoLabel: label,
		Events:    events,
		Notice:    notice,
	}
}

func (b *Board) shutdown() {
	for id, ch := range b.clients {
		close(ch) // Tell client no more snapshots
		delete(b.clients, id)
	}
	b.cancel()
}

func (b *Board) broadcast(snap Snapshot) {
	for id, ch := range b.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(b.clients, id)
		}
	}
}

func noticeFor(s engine.State, events []engine.Event) string {
	var notice string
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtWinThresholdReached:
			notice = joinNotice(notice, fmt.Sprintf("%s reached %d points!", s.Players[ev.Seat].Name, ev.Total))
		case engine.EvtGameCompleted:
			notice = joinNotice(notice, fmt.Sprintf("%s wins!", s.Players[ev.Seat].Name))
		}
	}
	return notice
}

func joinNotice(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}
