// internal/signaling/pgstore/postgres.go
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/signaling"
)

// notifyChannel is the LISTEN/NOTIFY channel; the payload is the game id.
const notifyChannel = "signaling_sessions"

const schema = `
CREATE TABLE IF NOT EXISTS signaling_sessions (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store keeps one JSONB row per game and announces writes with NOTIFY.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool for connStr, pings it and makes sure the table exists.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the sessions table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create signaling_sessions: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Create(ctx context.Context, id string, doc *models.SessionDoc) error {
	raw, err := signaling.EncodeDoc(doc)
	if err != nil {
		return err
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO signaling_sessions (id, doc) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			id, raw,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return signaling.ErrExists
		}
		return notify(ctx, tx, id)
	})
}

func (s *Store) Get(ctx context.Context, id string) (*models.SessionDoc, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM signaling_sessions WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, signaling.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return signaling.DecodeDoc(raw)
}

// Apply locks the row for the duration of the patch.
func (s *Store) Apply(ctx context.Context, id string, ops ...signaling.Op) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT doc FROM signaling_sessions WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return signaling.ErrNotFound
		}
		if err != nil {
			return err
		}
		next, err := signaling.ApplyOps(raw, ops)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE signaling_sessions SET doc = $2, updated_at = now() WHERE id = $1`,
			id, next,
		); err != nil {
			return err
		}
		return notify(ctx, tx, id)
	})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM signaling_sessions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return signaling.ErrNotFound
		}
		return notify(ctx, tx, id)
	})
}

// Subscribe holds a dedicated pool connection in LISTEN mode. Notifications
// only carry the id, so each one triggers a fresh read.
func (s *Store) Subscribe(ctx context.Context, id string) (<-chan signaling.Snapshot, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	feed := signaling.NewFeed(ctx, nil)
	s.pushCurrent(ctx, feed, id)

	go func() {
		defer func() {
			// the connection is still in LISTEN mode, so drop it instead of reusing it
			conn.Conn().Close(context.Background())
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}
			if n.Payload != id {
				continue
			}
			s.pushCurrent(ctx, feed, id)
		}
	}()
	return feed.C(), nil
}

func (s *Store) pushCurrent(ctx context.Context, feed *signaling.Feed, id string) {
	doc, err := s.Get(ctx, id)
	switch {
	case errors.Is(err, signaling.ErrNotFound):
		feed.Push(signaling.Snapshot{Deleted: true})
	case err == nil:
		feed.Push(signaling.Snapshot{Doc: doc})
	}
}

func notify(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, id)
	return err
}
