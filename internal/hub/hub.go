package hub

import (
	"context"

	"github.com/whnb773/catan-scoreboard/internal/board"
)

// LocalOwner keys the anonymous device board.
const LocalOwner = ""

type HubMsg interface{ isHubMsg() }

type GetBoard struct {
	Owner string
	Reply chan *board.Board
}

type EnsureBoard struct {
	Owner string
	Reply chan *board.Board
}

type RemoveBoard struct {
	Owner string
}

type CountBoards struct {
	Reply chan int
}

type ShutdownHub struct{}

func (GetBoard) isHubMsg()    {}
func (EnsureBoard) isHubMsg() {}
func (RemoveBoard) isHubMsg() {}
func (CountBoards) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Factory builds the board for owner; it runs on the hub goroutine.
type Factory func(ctx context.Context, owner string) *board.Board

// Hub is the registry of live boards, one per owner.
type Hub struct {
	inbox   chan HubMsg
	boards  map[string]*board.Board
	factory Factory
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, factory Factory) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		boards:  make(map[string]*board.Board),
		factory: factory,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetBoard:
				msg.Reply <- h.live(msg.Owner) // May be nil

			case EnsureBoard:
				if b := h.live(msg.Owner); b != nil {
					msg.Reply <- b
					break
				}
				b := h.factory(h.ctx, msg.Owner)
				h.boards[msg.Owner] = b
				msg.Reply <- b

			case RemoveBoard:
				if b := h.boards[msg.Owner]; b != nil {
					stop(b)
					delete(h.boards, msg.Owner)
				}

			case CountBoards:
				msg.Reply <- len(h.boards)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the registered board unless it has already stopped.
func (h *Hub) live(owner string) *board.Board {
	b := h.boards[owner]
	if b == nil {
		return nil
	}
	select {
	case <-b.Done():
		delete(h.boards, owner)
		return nil
	default:
		return b
	}
}

func (h *Hub) shutdown() {
	for _, b := range h.boards {
		stop(b)
	}
	clear(h.boards)
	h.cancel()
}

func stop(b *board.Board) {
	select {
	case b.Inbox() <- board.Shutdown{}:
	case <-b.Done():
	}
}
