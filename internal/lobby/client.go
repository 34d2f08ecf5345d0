package lobby

import (
	"context"
	"errors"
	"sync"

	"github.com/whnb773/catan-scoreboard/internal/types"
)

var ErrNoLobby = errors.New("not in a lobby")

type View string

const (
	ViewChoose  View = "choose"
	ViewHosting View = "hosting"
	ViewWaiting View = "waiting"
	ViewBoard   View = "board"
	ViewPlayer  View = "player"
)

const NoticeEnded = "The host ended the lobby"

const eventBuffer = 32

// ClientEvent is emitted whenever the device's lobby view changes or a new
// lobby document arrives.
type ClientEvent struct {
	View    View
	Session Session
	Notice  string
}

// Client drives one device through the lobby flow. It holds at most one
// subscription; starting a new one tears the old one down first.
type Client struct {
	svc       *Service
	who       types.Identity
	events    chan ClientEvent
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sub     *Subscription
	lobbyID string
	view    View
}

func NewClient(svc *Service, who types.Identity) *Client {
	return &Client{
		svc:    svc,
		who:    who,
		events: make(chan ClientEvent, eventBuffer),
		closed: make(chan struct{}),
		view:   ViewChoose,
	}
}

func (c *Client) Events() <-chan ClientEvent { return c.events }

func (c *Client) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *Client) Host(ctx context.Context) (Session, error) {
	sess, err := c.svc.Create(ctx, c.who)
	if err != nil {
		return Session{}, err
	}
	if err := c.follow(ctx, sess.ID, ViewHosting); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (c *Client) JoinByPin(ctx context.Context, pin string) (Session, error) {
	found, err := c.svc.FindByPin(ctx, pin)
	if err != nil {
		return Session{}, err
	}
	sess, err := c.svc.Join(ctx, found.ID, c.who)
	if err != nil {
		return Session{}, err
	}
	if err := c.follow(ctx, sess.ID, ViewWaiting); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (c *Client) Start(ctx context.Context) error {
	id := c.current()
	if id == "" {
		return ErrNoLobby
	}
	_, err := c.svc.Start(ctx, id, c.who)
	return err
}

// Cancel ends the lobby for a host or leaves it for a guest, then returns to
// the choose view.
func (c *Client) Cancel(ctx context.Context) error {
	id := c.current()
	if id == "" {
		return ErrNoLobby
	}
	var err error
	if v := c.View(); v == ViewHosting || v == ViewBoard {
		_, err = c.svc.End(ctx, id, c.who)
	} else {
		_, err = c.svc.Leave(ctx, id, c.who)
	}
	c.reset()
	return err
}

// Close drops the subscription, e.g. on sign-out or socket close. Events
// that are still undelivered are abandoned.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.reset()
}

func (c *Client) current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lobbyID
}

func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	c.lobbyID = ""
	c.view = ViewChoose
}

func (c *Client) follow(ctx context.Context, id string, view View) error {
	sub, err := c.svc.Listen(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.sub = sub
	c.lobbyID = id
	c.view = view
	c.mu.Unlock()

	go c.pump(sub)
	return nil
}

func (c *Client) pump(sub *Subscription) {
	for sess := range sub.Updates() {
		ev, done := c.transition(sub, sess)
		if ev.View == "" {
			continue
		}
		if done {
			c.deliver(ev)
			sub.Unsubscribe()
			return
		}
		c.offer(ev)
	}
}

// deliver blocks until ev is taken or the client is closed. Status changes
// go through here so a full buffer never loses them.
func (c *Client) deliver(ev ClientEvent) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

// offer queues a roster update without blocking. When the buffer is full the
// oldest queued event is discarded.
func (c *Client) offer(ev ClientEvent) {
	for {
		select {
		case c.events <- ev:
			return
		case <-c.closed:
			return
		default:
		}
		select {
		case <-c.events:
		default:
		}
	}
}

// transition applies one lobby document to the view state. Updates from a
// subscription that has been replaced are ignored.
func (c *Client) transition(sub *Subscription, sess Session) (ClientEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != sub {
		return ClientEvent{}, true
	}

	switch sess.Status {
	case StatusActive:
		if sess.HostID == c.who.UID {
			c.view = ViewBoard
		} else {
			c.view = ViewPlayer
		}
		c.sub = nil
		return ClientEvent{View: c.view, Session: sess}, true

	case StatusEnded:
		c.view = ViewChoose
		c.sub = nil
		c.lobbyID = ""
		return ClientEvent{View: ViewChoose, Session: sess, Notice: NoticeEnded}, true
	}
	return ClientEvent{View: c.view, Session: sess}, false
}
