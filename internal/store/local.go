package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whnb773/catan-scoreboard/internal/engine"
)

const (
	StateKey   = "catan_scoreboard_v12"
	BackupsKey = StateKey + "_snapshots"
)

const (
	ReasonManual    = "Manual snapshot"
	ReasonAutoOnEnd = "Auto snapshot on end"
)

var ErrBackupNotFound = errors.New("backup not found")

// Backup is one stored snapshot of a full exported board document.
type Backup struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Title     string          `json:"title"`
	Games     int             `json:"games"`
	Rolls     int             `json:"rolls"`
	Reason    string          `json:"reason"`
	Payload   json.RawMessage `json:"payload"`
}

// Local persists one board's current document and its backups in a KV store.
// Failures are logged and reported as false; the in-memory board stays authoritative.
type Local struct {
	kv        KV
	namespace string
	log       *zap.Logger
}

// NewLocal scopes keys by namespace; the empty namespace uses the bare keys.
func NewLocal(kv KV, namespace string, log *zap.Logger) *Local {
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{kv: kv, namespace: namespace, log: log}
}

func (l *Local) key(base string) string {
	if l.namespace == "" {
		return base
	}
	return base + ":" + l.namespace
}

// Load returns the raw stored document, or nil when missing or corrupted.
func (l *Local) Load(ctx context.Context) json.RawMessage {
	raw, ok, err := l.kv.Get(ctx, l.key(StateKey))
	if err != nil {
		l.log.Warn("local load failed", zap.String("key", l.key(StateKey)), zap.Error(err))
		return nil
	}
	if !ok || !json.Valid(raw) {
		return nil
	}
	var probe map[string]json.RawMessage
	if json.Unmarshal(raw, &probe) != nil || probe == nil {
		return nil
	}
	return raw
}

// Persist writes s and reports whether the write succeeded.
func (l *Local) Persist(ctx context.Context, s engine.State) bool {
	raw, err := engine.Marshal(s)
	if err != nil {
		l.log.Error("export failed", zap.Error(err))
		return false
	}
	if err := l.kv.Set(ctx, l.key(StateKey), raw); err != nil {
		l.log.Warn("local save failed", zap.String("key", l.key(StateKey)), zap.Error(err))
		return false
	}
	return true
}

// Backups returns stored backups, most recent first. Corrupted data reads as empty.
func (l *Local) Backups(ctx context.Context) []Backup {
	raw, ok, err := l.kv.Get(ctx, l.key(BackupsKey))
	if err != nil {
		l.log.Warn("backup list failed", zap.Error(err))
		return []Backup{}
	}
	if !ok {
		return []Backup{}
	}
	var list []Backup
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return []Backup{}
	}
	return list
}

func (l *Local) FindBackup(ctx context.Context, id string) (Backup, error) {
	for _, b := range l.Backups(ctx) {
		if b.ID == id {
			return b, nil
		}
	}
	return Backup{}, ErrBackupNotFound
}

// AddBackup prepends a snapshot of s and trims the list to s.Backup.MaxSnapshots.
func (l *Local) AddBackup(ctx context.Context, s engine.State, reason string, at time.Time) (Backup, bool) {
	payload, err := engine.Marshal(s)
	if err != nil {
		l.log.Error("export failed", zap.Error(err))
		return Backup{}, false
	}
	b := Backup{
		ID:        uuid.NewString(),
		CreatedAt: at.UTC(),
		Title:     s.Title,
		Games:     len(s.History),
		Rolls:     s.Dice.TotalRolls,
		Reason:    reason,
		Payload:   payload,
	}

	list := append([]Backup{b}, l.Backups(ctx)...)
	limit := s.Backup.MaxSnapshots
	if limit < engine.MinSnapshots || limit > engine.MaxSnapshots {
		limit = engine.DefaultSnapshots
	}
	if len(list) > limit {
		list = list[:limit]
	}

	raw, err := json.Marshal(list)
	if err != nil {
		l.log.Error("backup encode failed", zap.Error(err))
		return Backup{}, false
	}
	if err := l.kv.Set(ctx, l.key(BackupsKey), raw); err != nil {
		l.log.Warn("snapshot save failed", zap.String("reason", reason), zap.Error(err))
		return Backup{}, false
	}
	return b, true
}
