package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/whnb773/catan-scoreboard/internal/engine"
)

var ErrNotFound = errors.New("lobby not found")
var ErrInvalidPin = errors.New("pin must be 6 digits")
var ErrNotHost = errors.New("only the host can do that")
var ErrLobbyClosed = errors.New("lobby is not accepting players")
var ErrHostCannotLeave = errors.New("host must end the lobby instead of leaving")
var ErrBadTransition = errors.New("lobby cannot move to that status")

// FreshFor is how long a waiting lobby can be found by its PIN.
const FreshFor = 2 * time.Hour

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	IsHost      bool   `json:"isHost"`
}

type Session struct {
	ID        string    `json:"id"`
	Pin       string    `json:"pin"`
	CreatedAt time.Time `json:"createdAt"`
	HostID    string    `json:"hostId"`
	Status    Status    `json:"status"`
	Players   []Member  `json:"players"`
}

func (s Session) Clone() Session {
	c := s
	c.Players = append([]Member(nil), s.Players...)
	return c
}

func (s Session) Member(id string) (Member, bool) {
	for _, m := range s.Players {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

// Roster maps the first four members onto board seats in join order.
func (s Session) Roster() []engine.Seat {
	seats := make([]engine.Seat, 0, engine.NumPlayers)
	for _, m := range s.Players {
		if len(seats) == engine.NumPlayers {
			break
		}
		seats = append(seats, engine.Seat{UserID: m.ID, DisplayName: m.DisplayName, AvatarURL: m.AvatarURL})
	}
	return seats
}

// Repository persists lobby documents. Update is a read-modify-write against
// the latest stored copy; Watch streams the current document and every change
// until ctx is cancelled, then closes the channel.
type Repository interface {
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	FindWaitingByPin(ctx context.Context, pin string, since time.Time) ([]Session, error)
	Update(ctx context.Context, id string, fn func(s *Session) error) (Session, error)
	Watch(ctx context.Context, id string) (<-chan Session, error)
}
