package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const notifyChannel = "lobby_changes"

const schema = `
CREATE TABLE IF NOT EXISTS lobbies (
    id         TEXT PRIMARY KEY,
    pin        TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    host_id    TEXT NOT NULL,
    status     TEXT NOT NULL,
    players    JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS lobbies_pin_status_idx ON lobbies (pin, status, created_at DESC);
`

// PostgresStore keeps lobby documents in Postgres. Roster edits lock the row
// with SELECT ... FOR UPDATE, and every committed change is announced on the
// lobby_changes channel so watchers on other server instances see it too.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger

	afterSnapshot func() // test hook, runs once Watch has read the first document
}

func NewPostgresStore(ctx context.Context, connString string, log *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("lobby schema: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

func (p *PostgresStore) Close() { p.pool.Close() }

func (p *PostgresStore) Insert(ctx context.Context, s Session) error {
	players, err := json.Marshal(s.Players)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO lobbies (id, pin, created_at, host_id, status, players) VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Pin, s.CreatedAt, s.HostID, string(s.Status), players)
	if err != nil {
		return fmt.Errorf("insert lobby: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s       Session
		status  string
		players []byte
	)
	if err := row.Scan(&s.ID, &s.Pin, &s.CreatedAt, &s.HostID, &status, &players); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	s.Status = Status(status)
	s.CreatedAt = s.CreatedAt.UTC()
	if err := json.Unmarshal(players, &s.Players); err != nil {
		return Session{}, fmt.Errorf("decode roster: %w", err)
	}
	return s, nil
}

const selectSession = `SELECT id, pin, created_at, host_id, status, players FROM lobbies`

func (p *PostgresStore) Get(ctx context.Context, id string) (Session, error) {
	return scanSession(p.pool.QueryRow(ctx, selectSession+` WHERE id = $1`, id))
}

func (p *PostgresStore) FindWaitingByPin(ctx context.Context, pin string, since time.Time) ([]Session, error) {
	rows, err := p.pool.Query(ctx,
		selectSession+` WHERE pin = $1 AND status = $2 AND created_at >= $3 ORDER BY created_at DESC`,
		pin, string(StatusWaiting), since)
	if err != nil {
		return nil, fmt.Errorf("find lobby: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, id string, fn func(s *Session) error) (Session, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback(ctx)

	cur, err := scanSession(tx.QueryRow(ctx, selectSession+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Session{}, err
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cur, err
	}

	players, err := json.Marshal(next.Players)
	if err != nil {
		return Session{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE lobbies SET status = $2, players = $3 WHERE id = $1`,
		id, string(next.Status), players); err != nil {
		return Session{}, fmt.Errorf("update lobby: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, id); err != nil {
		return Session{}, fmt.Errorf("notify lobby: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}
	return next, nil
}

// Watch holds one pooled connection in LISTEN mode for the lifetime of ctx.
// LISTEN is issued before the first read, so a change committed in between
// is delivered as a (possibly duplicate) update.
func (p *PostgresStore) Watch(ctx context.Context, id string) (<-chan Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}
	first, err := p.Get(ctx, id)
	if err != nil {
		p.unlisten(conn)
		return nil, err
	}
	if p.afterSnapshot != nil {
		p.afterSnapshot()
	}

	out := make(chan Session, watchBuffer)
	out <- first
	go func() {
		defer close(out)
		defer p.unlisten(conn)

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn("lobby listener stopped", zap.String("lobby", id), zap.Error(err))
				}
				return
			}
			if n.Payload != id {
				continue
			}
			s, err := p.Get(ctx, id)
			if err != nil {
				p.log.Warn("lobby reload failed", zap.String("lobby", id), zap.Error(err))
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			default:
				p.log.Warn("lobby listener too slow, dropping", zap.String("lobby", id))
				return
			}
		}
	}()
	return out, nil
}

func (p *PostgresStore) unlisten(conn *pgxpool.Conn) {
	cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Exec(cleanup, `UNLISTEN `+notifyChannel); err != nil {
		conn.Conn().Close(cleanup)
	}
	conn.Release()
}
