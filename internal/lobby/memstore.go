package lobby

import (
	"context"
	"sort"
	"time"
)

const watchBuffer = 16

type storeMsg interface{ isStoreMsg() }

type insertMsg struct {
	Session Session
	Reply   chan error
}

type getMsg struct {
	ID    string
	Reply chan getReply
}

type getReply struct {
	Session Session
	Err     error
}

type findMsg struct {
	Pin   string
	Since time.Time
	Reply chan []Session
}

type updateMsg struct {
	ID    string
	Fn    func(s *Session) error
	Reply chan getReply
}

type watchMsg struct {
	ID    string
	Out   chan Session
	Reply chan error
}

type unwatchMsg struct {
	ID  string
	Out chan Session
}

func (insertMsg) isStoreMsg()  {}
func (getMsg) isStoreMsg()     {}
func (findMsg) isStoreMsg()    {}
func (updateMsg) isStoreMsg()  {}
func (watchMsg) isStoreMsg()   {}
func (unwatchMsg) isStoreMsg() {}

// MemoryStore is an in-process Repository. One goroutine owns every lobby
// document, so each Update runs to completion before the next.
type MemoryStore struct {
	inbox    chan storeMsg
	sessions map[string]Session
	watchers map[string]map[chan Session]struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewMemoryStore(parent context.Context) *MemoryStore {
	ctx, cancel := context.WithCancel(parent)
	m := &MemoryStore{
		inbox:    make(chan storeMsg, 64),
		sessions: make(map[string]Session),
		watchers: make(map[string]map[chan Session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go m.loop()
	return m
}

func (m *MemoryStore) Close() { m.cancel() }

func (m *MemoryStore) loop() {
	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return

		case in := <-m.inbox:
			switch msg := in.(type) {
			case insertMsg:
				m.sessions[msg.Session.ID] = msg.Session.Clone()
				msg.Reply <- nil

			case getMsg:
				s, ok := m.sessions[msg.ID]
				if !ok {
					msg.Reply <- getReply{Err: ErrNotFound}
					break
				}
				msg.Reply <- getReply{Session: s.Clone()}

			case findMsg:
				var out []Session
				for _, s := range m.sessions {
					if s.Pin == msg.Pin && s.Status == StatusWaiting && !s.CreatedAt.Before(msg.Since) {
						out = append(out, s.Clone())
					}
				}
				sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
				msg.Reply <- out

			case updateMsg:
				s, ok := m.sessions[msg.ID]
				if !ok {
					msg.Reply <- getReply{Err: ErrNotFound}
					break
				}
				next := s.Clone()
				if err := msg.Fn(&next); err != nil {
					msg.Reply <- getReply{Session: s.Clone(), Err: err}
					break
				}
				m.sessions[msg.ID] = next
				m.notify(next)
				msg.Reply <- getReply{Session: next.Clone()}

			case watchMsg:
				s, ok := m.sessions[msg.ID]
				if !ok {
					msg.Reply <- ErrNotFound
					break
				}
				if m.watchers[msg.ID] == nil {
					m.watchers[msg.ID] = make(map[chan Session]struct{})
				}
				m.watchers[msg.ID][msg.Out] = struct{}{}
				msg.Out <- s.Clone()
				msg.Reply <- nil

			case unwatchMsg:
				if set, ok := m.watchers[msg.ID]; ok {
					if _, ok := set[msg.Out]; ok {
						delete(set, msg.Out)
						close(msg.Out)
					}
				}
			}
		}
	}
}

func (m *MemoryStore) notify(s Session) {
	for out := range m.watchers[s.ID] {
		select {
		case out <- s.Clone():
		default:
			// Slow listener: drop it, it sees a closed channel.
			delete(m.watchers[s.ID], out)
			close(out)
		}
	}
}

func (m *MemoryStore) shutdown() {
	for id, set := range m.watchers {
		for out := range set {
			close(out)
		}
		delete(m.watchers, id)
	}
}

func (m *MemoryStore) send(ctx context.Context, msg storeMsg) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
}

// await waits for the loop's reply, giving up if the store shuts down first.
func await[T any](m *MemoryStore, reply chan T) (T, error) {
	select {
	case r := <-reply:
		return r, nil
	case <-m.ctx.Done():
		var zero T
		return zero, m.ctx.Err()
	}
}

func (m *MemoryStore) Insert(ctx context.Context, s Session) error {
	reply := make(chan error, 1)
	if err := m.send(ctx, insertMsg{Session: s, Reply: reply}); err != nil {
		return err
	}
	err, closed := await(m, reply)
	if closed != nil {
		return closed
	}
	return err
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Session, error) {
	reply := make(chan getReply, 1)
	if err := m.send(ctx, getMsg{ID: id, Reply: reply}); err != nil {
		return Session{}, err
	}
	r, err := await(m, reply)
	if err != nil {
		return Session{}, err
	}
	return r.Session, r.Err
}

func (m *MemoryStore) FindWaitingByPin(ctx context.Context, pin string, since time.Time) ([]Session, error) {
	reply := make(chan []Session, 1)
	if err := m.send(ctx, findMsg{Pin: pin, Since: since, Reply: reply}); err != nil {
		return nil, err
	}
	return await(m, reply)
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(s *Session) error) (Session, error) {
	reply := make(chan getReply, 1)
	if err := m.send(ctx, updateMsg{ID: id, Fn: fn, Reply: reply}); err != nil {
		return Session{}, err
	}
	r, err := await(m, reply)
	if err != nil {
		return Session{}, err
	}
	return r.Session, r.Err
}

func (m *MemoryStore) Watch(ctx context.Context, id string) (<-chan Session, error) {
	out := make(chan Session, watchBuffer)
	reply := make(chan error, 1)
	if err := m.send(ctx, watchMsg{ID: id, Out: out, Reply: reply}); err != nil {
		return nil, err
	}
	err, closed := await(m, reply)
	if closed != nil {
		return nil, closed
	}
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-m.ctx.Done():
			return
		}
		select {
		case m.inbox <- unwatchMsg{ID: id, Out: out}:
		case <-m.ctx.Done():
		}
	}()
	return out, nil
}
