package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whnb773/catan-scoreboard/internal/engine"
	"github.com/whnb773/catan-scoreboard/internal/types"
)

type Service struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// EnsureProfile creates the profile on first sign-in and afterwards refreshes
// lastSeen, avatar and email.
func (s *Service) EnsureProfile(ctx context.Context, id types.Identity) (Profile, error) {
	if id.Anonymous() {
		return Profile{}, ErrNotFound
	}
	now := s.now().UTC()

	_, err := s.repo.Get(ctx, id.UID)
	if errors.Is(err, ErrNotFound) {
		p := Profile{
			UID:         id.UID,
			DisplayName: defaultDisplayName(id),
			Email:       id.Email,
			AvatarURL:   id.AvatarURL,
			ColourPref:  DefaultColour,
			CreatedAt:   now,
			LastSeen:    now,
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return Profile{}, err
		}
		s.log.Info("profile created", zap.String("user", id.UID))
		return p, nil
	}
	if err != nil {
		return Profile{}, err
	}

	var out Profile
	err = s.repo.Update(ctx, id.UID, func(p *Profile) error {
		p.LastSeen = now
		if id.AvatarURL != "" {
			p.AvatarURL = id.AvatarURL
		}
		if id.Email != "" {
			p.Email = id.Email
		}
		out = *p
		return nil
	})
	return out, err
}

func defaultDisplayName(id types.Identity) string {
	if name := strings.TrimSpace(id.DisplayName); name != "" {
		return truncateName(name)
	}
	if local, _, ok := strings.Cut(id.Email, "@"); ok && local != "" {
		return truncateName(local)
	}
	return "Player"
}

func truncateName(name string) string {
	r := []rune(name)
	if len(r) > engine.MaxNameLen {
		return string(r[:engine.MaxNameLen])
	}
	return name
}

func (s *Service) Profile(ctx context.Context, uid string) (Profile, error) {
	return s.repo.Get(ctx, uid)
}

// RecordFinishedGame writes the game record, then applies each registered
// player's stat update independently. Only the record write can fail the call;
// per-player failures are logged and do not affect the others.
func (s *Service) RecordFinishedGame(ctx context.Context, res engine.GameResult, hostID string) (GameRecord, error) {
	rec := NewRecord(uuid.NewString(), hostID, res)
	if err := s.repo.SaveGame(ctx, rec); err != nil {
		return GameRecord{}, fmt.Errorf("record game: %w", err)
	}

	var g errgroup.Group
	for uid, delta := range Deltas(rec) {
		g.Go(func() error {
			s.applyDelta(ctx, rec.ID, uid, delta)
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("game recorded",
		zap.String("game", rec.ID),
		zap.String("host", hostID),
		zap.String("winner", rec.WinnerID),
		zap.Int("margin", rec.Margin),
	)
	return rec, nil
}

func (s *Service) applyDelta(ctx context.Context, gameID, uid string, d StatDelta) {
	err := s.repo.Update(ctx, uid, func(p *Profile) error {
		*p = ApplyResult(*p, d)
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		s.log.Debug("no profile for player, skipping stats", zap.String("user", uid))
		return
	case err != nil:
		s.log.Warn("player stats update failed", zap.String("user", uid), zap.String("game", gameID), zap.Error(err))
		return
	}
	if err := s.repo.AddGameRef(ctx, uid, gameID); err != nil {
		s.log.Warn("game ref write failed", zap.String("user", uid), zap.String("game", gameID), zap.Error(err))
	}
}

func (s *Service) Leaderboard(ctx context.Context) ([]Profile, error) {
	return s.repo.TopByWins(ctx, LeaderboardSize)
}

func (s *Service) SearchUsers(ctx context.Context, q string) ([]Profile, error) {
	if strings.TrimSpace(q) == "" {
		return []Profile{}, nil
	}
	return s.repo.SearchByName(ctx, q, SearchLimit)
}

// UserGames returns up to the last 20 games for uid, newest first. Refs whose
// record is gone are skipped.
func (s *Service) UserGames(ctx context.Context, uid string) ([]GameRecord, error) {
	ids, err := s.repo.GameRefs(ctx, uid, RecentGames)
	if err != nil {
		return nil, err
	}
	out := make([]GameRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.repo.Game(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) UpdateDisplayName(ctx context.Context, uid, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	return s.repo.Update(ctx, uid, func(p *Profile) error {
		p.DisplayName = truncateName(name)
		return nil
	})
}

// UpdateColourPref accepts a colour key or its hex value and stores the hex.
func (s *Service) UpdateColourPref(ctx context.Context, uid, colour string) error {
	key, ok := engine.ColorKeyFor(strings.TrimSpace(colour))
	if !ok {
		return ErrInvalidColour
	}
	return s.repo.Update(ctx, uid, func(p *Profile) error {
		p.ColourPref = engine.ColorHex(key)
		return nil
	})
}
