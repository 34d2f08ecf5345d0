package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whnb773/catan-scoreboard/internal/textutil"
)

type userRow struct {
	UID              string `gorm:"primaryKey;size:128"`
	DisplayName      string `gorm:"size:60;not null"`
	SearchName       string `gorm:"size:60;index"`
	Email            string `gorm:"size:255"`
	AvatarURL        string
	ColourPref       string `gorm:"size:16"`
	CreatedAt        time.Time
	LastSeen         time.Time
	TotalGames       int `gorm:"not null;default:0"`
	TotalWins        int `gorm:"not null;default:0;index"`
	WinStreakCurrent int `gorm:"not null;default:0"`
	WinStreakLongest int `gorm:"not null;default:0"`
	AvgMargin        int `gorm:"not null;default:0"`
	TotalVP          int `gorm:"not null;default:0"`
	TotalRolls       int `gorm:"not null;default:0"`
}

func (userRow) TableName() string { return "users" }

type gameRow struct {
	ID            string `gorm:"primaryKey;size:64"`
	HostID        string `gorm:"size:128;index"`
	StartedAt     time.Time
	EndedAt       time.Time
	DurationMs    int64
	TotalRolls    int
	Ruleset       string `gorm:"size:16"`
	WinningPoints int
	Margin        int
	WinnerID      string `gorm:"size:128"`
	Players       []byte `gorm:"not null"`
}

func (gameRow) TableName() string { return "games" }

type gameRefRow struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"size:128;index:idx_game_refs_user_created,priority:1"`
	GameID    string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"index:idx_game_refs_user_created,priority:2"`
}

func (gameRefRow) TableName() string { return "game_refs" }

// GormRepo stores profiles, game records and per-user game refs in Postgres.
type GormRepo struct {
	db *gorm.DB
}

func NewGormRepo(db *gorm.DB) (*GormRepo, error) {
	if err := db.AutoMigrate(&userRow{}, &gameRow{}, &gameRefRow{}); err != nil {
		return nil, fmt.Errorf("migrate profiles: %w", err)
	}
	return &GormRepo{db: db}, nil
}

func toRow(p Profile) userRow {
	return userRow{
		UID:              p.UID,
		DisplayName:      p.DisplayName,
		SearchName:       textutil.SearchKey(p.DisplayName),
		Email:            p.Email,
		AvatarURL:        p.AvatarURL,
		ColourPref:       p.ColourPref,
		CreatedAt:        p.CreatedAt,
		LastSeen:         p.LastSeen,
		TotalGames:       p.TotalGames,
		TotalWins:        p.TotalWins,
		WinStreakCurrent: p.WinStreakCurrent,
		WinStreakLongest: p.WinStreakLongest,
		AvgMargin:        p.AvgMargin,
		TotalVP:          p.TotalVP,
		TotalRolls:       p.TotalRolls,
	}
}

func fromRow(r userRow) Profile {
	return Profile{
		UID:              r.UID,
		DisplayName:      r.DisplayName,
		Email:            r.Email,
		AvatarURL:        r.AvatarURL,
		ColourPref:       r.ColourPref,
		CreatedAt:        r.CreatedAt,
		LastSeen:         r.LastSeen,
		TotalGames:       r.TotalGames,
		TotalWins:        r.TotalWins,
		WinStreakCurrent: r.WinStreakCurrent,
		WinStreakLongest: r.WinStreakLongest,
		AvgMargin:        r.AvgMargin,
		TotalVP:          r.TotalVP,
		TotalRolls:       r.TotalRolls,
	}
}

func (r *GormRepo) Get(ctx context.Context, uid string) (Profile, error) {
	var row userRow
	err := r.db.WithContext(ctx).First(&row, "uid = ?", uid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return fromRow(row), nil
}

func (r *GormRepo) Create(ctx context.Context, p Profile) error {
	row := toRow(p)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create profile %s: %w", p.UID, err)
	}
	return nil
}

func (r *GormRepo) Update(ctx context.Context, uid string, fn func(p *Profile) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "uid = ?", uid).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock profile %s: %w", uid, err)
		}
		p := fromRow(row)
		if err := fn(&p); err != nil {
			return err
		}
		next := toRow(p)
		next.UID = uid
		return tx.Save(&next).Error
	})
}

func (r *GormRepo) TopByWins(ctx context.Context, limit int) ([]Profile, error) {
	var rows []userRow
	err := r.db.WithContext(ctx).Order("total_wins DESC").Order("uid").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]Profile, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (r *GormRepo) SearchByName(ctx context.Context, prefix string, limit int) ([]Profile, error) {
	var rows []userRow
	err := r.db.WithContext(ctx).
		Where("search_name LIKE ?", escapeLike(textutil.SearchKey(prefix))+"%").
		Order("display_name").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	out := make([]Profile, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (r *GormRepo) SaveGame(ctx context.Context, rec GameRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}
	row := gameRow{
		ID:            rec.ID,
		HostID:        rec.HostID,
		StartedAt:     rec.StartedAt,
		EndedAt:       rec.EndedAt,
		DurationMs:    rec.DurationMs,
		TotalRolls:    rec.TotalRolls,
		Ruleset:       rec.Ruleset,
		WinningPoints: rec.WinningPoints,
		Margin:        rec.Margin,
		WinnerID:      rec.WinnerID,
		Players:       players,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save game %s: %w", rec.ID, err)
	}
	return nil
}

func (r *GormRepo) Game(ctx context.Context, id string) (GameRecord, error) {
	var row gameRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GameRecord{}, ErrNotFound
	}
	if err != nil {
		return GameRecord{}, fmt.Errorf("get game %s: %w", id, err)
	}
	rec := GameRecord{
		ID:            row.ID,
		HostID:        row.HostID,
		StartedAt:     row.StartedAt,
		EndedAt:       row.EndedAt,
		DurationMs:    row.DurationMs,
		TotalRolls:    row.TotalRolls,
		Ruleset:       row.Ruleset,
		WinningPoints: row.WinningPoints,
		Margin:        row.Margin,
		WinnerID:      row.WinnerID,
	}
	if err := json.Unmarshal(row.Players, &rec.Players); err != nil {
		return GameRecord{}, fmt.Errorf("decode game %s: %w", id, err)
	}
	return rec, nil
}

func (r *GormRepo) AddGameRef(ctx context.Context, uid, gameID string) error {
	row := gameRefRow{UserID: uid, GameID: gameID, CreatedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("add game ref %s: %w", uid, err)
	}
	return nil
}

func (r *GormRepo) GameRefs(ctx context.Context, uid string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&gameRefRow{}).
		Where("user_id = ?", uid).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Pluck("game_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("game refs %s: %w", uid, err)
	}
	return ids, nil
}

func escapeLike(s string) string {
	r := []rune{}
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(r)
}
