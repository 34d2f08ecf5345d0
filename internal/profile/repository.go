package profile

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/whnb773/catan-scoreboard/internal/textutil"
)

type Repository interface {
	Get(ctx context.Context, uid string) (Profile, error)
	Create(ctx context.Context, p Profile) error
	// Update runs fn against the stored profile inside one transaction.
	Update(ctx context.Context, uid string, fn func(p *Profile) error) error
	TopByWins(ctx context.Context, limit int) ([]Profile, error)
	SearchByName(ctx context.Context, prefix string, limit int) ([]Profile, error)

	SaveGame(ctx context.Context, rec GameRecord) error
	Game(ctx context.Context, id string) (GameRecord, error)
	AddGameRef(ctx context.Context, uid, gameID string) error
	GameRefs(ctx context.Context, uid string, limit int) ([]string, error)
}

type MemoryRepo struct {
	mu       sync.Mutex
	profiles map[string]Profile
	games    map[string]GameRecord
	refs     map[string][]string // newest first

	// FailUpdates injects per-user Update failures.
	FailUpdates map[string]error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		profiles:    make(map[string]Profile),
		games:       make(map[string]GameRecord),
		refs:        make(map[string][]string),
		FailUpdates: make(map[string]error),
	}
}

func (m *MemoryRepo) Get(_ context.Context, uid string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryRepo) Create(_ context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UID] = p
	return nil
}

func (m *MemoryRepo) Update(_ context.Context, uid string, fn func(p *Profile) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailUpdates[uid]; err != nil {
		return err
	}
	p, ok := m.profiles[uid]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&p); err != nil {
		return err
	}
	m.profiles[uid] = p
	return nil
}

func (m *MemoryRepo) TopByWins(_ context.Context, limit int) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalWins != out[j].TotalWins {
			return out[i].TotalWins > out[j].TotalWins
		}
		return out[i].UID < out[j].UID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepo) SearchByName(_ context.Context, prefix string, limit int) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := textutil.SearchKey(prefix)
	out := make([]Profile, 0, limit)
	for _, p := range m.profiles {
		if strings.HasPrefix(textutil.SearchKey(p.DisplayName), key) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepo) SaveGame(_ context.Context, rec GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[rec.ID] = rec
	return nil
}

func (m *MemoryRepo) Game(_ context.Context, id string) (GameRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.games[id]
	if !ok {
		return GameRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryRepo) AddGameRef(_ context.Context, uid, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[uid] = append([]string{gameID}, m.refs[uid]...)
	return nil
}

func (m *MemoryRepo) GameRefs(_ context.Context, uid string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := m.refs[uid]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return append([]string(nil), refs...), nil
}
