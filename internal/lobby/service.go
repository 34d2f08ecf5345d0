package lobby

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/types"
)

const (
	pinLength   = 6
	pinAttempts = 5
)

// GeneratePin returns a random 6-digit PIN.
func GeneratePin() (string, error) {
	const digits = "0123456789"

	pin := make([]byte, pinLength)
	for i := range pin {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		pin[i] = digits[num.Int64()]
	}
	return string(pin), nil
}

func ValidPin(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type Service struct {
	repo  Repository
	log   *zap.Logger
	now   func() time.Time
	pin   func() (string, error)
	fresh time.Duration
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, now: time.Now, pin: GeneratePin, fresh: FreshFor}
}

// WithFreshness overrides how long a waiting lobby stays joinable by PIN.
func (s *Service) WithFreshness(d time.Duration) *Service {
	if d > 0 {
		s.fresh = d
	}
	return s
}

// Create opens a waiting lobby with the host as its only member. A PIN that
// already belongs to a fresh waiting lobby is regenerated a few times; after
// that the newest lobby wins lookups.
func (s *Service) Create(ctx context.Context, host types.Identity) (Session, error) {
	now := s.now().UTC()

	var pin string
	for attempt := 1; ; attempt++ {
		p, err := s.pin()
		if err != nil {
			return Session{}, fmt.Errorf("generate pin: %w", err)
		}
		pin = p
		taken, err := s.repo.FindWaitingByPin(ctx, p, now.Add(-s.fresh))
		if err != nil {
			return Session{}, err
		}
		if len(taken) == 0 {
			break
		}
		if attempt == pinAttempts {
			s.log.Warn("pin still in use after retries", zap.String("pin", p))
			break
		}
		s.log.Debug("pin collision, regenerating", zap.Int("attempt", attempt))
	}

	sess := Session{
		ID:        uuid.NewString(),
		Pin:       pin,
		CreatedAt: now,
		HostID:    host.UID,
		Status:    StatusWaiting,
		Players: []Member{{
			ID:          host.UID,
			DisplayName: host.DisplayName,
			AvatarURL:   host.AvatarURL,
			IsHost:      true,
		}},
	}
	if err := s.repo.Insert(ctx, sess); err != nil {
		return Session{}, err
	}
	s.log.Info("lobby created", zap.String("lobby", sess.ID), zap.String("host", host.UID))
	return sess, nil
}

// FindByPin returns the newest waiting lobby that is still fresh.
func (s *Service) FindByPin(ctx context.Context, pin string) (Session, error) {
	if !ValidPin(pin) {
		return Session{}, ErrInvalidPin
	}
	found, err := s.repo.FindWaitingByPin(ctx, pin, s.now().UTC().Add(-s.fresh))
	if err != nil {
		return Session{}, err
	}
	if len(found) == 0 {
		return Session{}, ErrNotFound
	}
	return found[0], nil
}

// Join adds who to the roster. Joining twice is a no-op; new members are
// only accepted while the lobby is waiting.
func (s *Service) Join(ctx context.Context, id string, who types.Identity) (Session, error) {
	return s.repo.Update(ctx, id, func(sess *Session) error {
		if _, ok := sess.Member(who.UID); ok {
			return nil
		}
		if sess.Status != StatusWaiting {
			return ErrLobbyClosed
		}
		sess.Players = append(sess.Players, Member{
			ID:          who.UID,
			DisplayName: who.DisplayName,
			AvatarURL:   who.AvatarURL,
		})
		return nil
	})
}

func (s *Service) Start(ctx context.Context, id string, actor types.Identity) (Session, error) {
	return s.repo.Update(ctx, id, func(sess *Session) error {
		if sess.HostID != actor.UID {
			return ErrNotHost
		}
		if sess.Status != StatusWaiting {
			return ErrBadTransition
		}
		sess.Status = StatusActive
		return nil
	})
}

// End is the host's cancel; it is terminal and idempotent.
func (s *Service) End(ctx context.Context, id string, actor types.Identity) (Session, error) {
	return s.repo.Update(ctx, id, func(sess *Session) error {
		if sess.HostID != actor.UID {
			return ErrNotHost
		}
		sess.Status = StatusEnded
		return nil
	})
}

// Leave removes only who's roster entry; the status is unchanged.
func (s *Service) Leave(ctx context.Context, id string, who types.Identity) (Session, error) {
	return s.repo.Update(ctx, id, func(sess *Session) error {
		if sess.HostID == who.UID {
			return ErrHostCannotLeave
		}
		kept := sess.Players[:0]
		for _, m := range sess.Players {
			if m.ID != who.UID {
				kept = append(kept, m)
			}
		}
		sess.Players = kept
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	return s.repo.Get(ctx, id)
}

// Subscription is a live view of one lobby. Updates yields the current
// document first, then every change, and is closed after Unsubscribe.
type Subscription struct {
	updates <-chan Session
	cancel  context.CancelFunc
	once    sync.Once
}

func (s *Subscription) Updates() <-chan Session { return s.updates }

func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

func (s *Service) Listen(ctx context.Context, id string) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	updates, err := s.repo.Watch(ctx, id)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Subscription{updates: updates, cancel: cancel}, nil
}
