package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Remote holds each signed-in user's current game document.
type Remote interface {
	LoadGame(ctx context.Context, uid string) (json.RawMessage, bool, error)
	SaveGame(ctx context.Context, uid string, doc json.RawMessage) error
}

type MemoryRemote struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{docs: make(map[string]json.RawMessage)}
}

func (m *MemoryRemote) LoadGame(_ context.Context, uid string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, false, m.Err
	}
	doc, ok := m.docs[uid]
	return doc, ok, nil
}

func (m *MemoryRemote) SaveGame(_ context.Context, uid string, doc json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.docs[uid] = append(json.RawMessage(nil), doc...)
	return nil
}

// CloudSave is the gorm model backing GormRemote.
type CloudSave struct {
	UserID    string `gorm:"primaryKey;size:128"`
	Payload   []byte `gorm:"not null"`
	UpdatedAt time.Time
}

type GormRemote struct {
	db *gorm.DB
}

func NewGormRemote(db *gorm.DB) (*GormRemote, error) {
	if err := db.AutoMigrate(&CloudSave{}); err != nil {
		return nil, fmt.Errorf("migrate cloud saves: %w", err)
	}
	return &GormRemote{db: db}, nil
}

func (r *GormRemote) LoadGame(ctx context.Context, uid string) (json.RawMessage, bool, error) {
	var row CloudSave
	err := r.db.WithContext(ctx).First(&row, "user_id = ?", uid).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("load cloud save: %w", err)
	}
	return row.Payload, true, nil
}

func (r *GormRemote) SaveGame(ctx context.Context, uid string, doc json.RawMessage) error {
	row := CloudSave{UserID: uid, Payload: doc, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save cloud save: %w", err)
	}
	return nil
}
