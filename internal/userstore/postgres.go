package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	_ "github.com/lib/pq"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

const defaultPageSize = 500

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		first_name TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value BIGINT NOT NULL DEFAULT 0
	)`,
}

// PostgresStore is a Store backed by PostgreSQL through lib/pq.
type PostgresStore struct {
	db       *sql.DB
	pageSize int
}

// OpenPostgres connects to dsn, checks the connection and runs migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an already open database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, pageSize: defaultPageSize}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, u User) error {
	if u.ID == 0 {
		return ErrInvalidUser
	}
	if u.JoinedAt.IsZero() {
		u.JoinedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, first_name, username, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET first_name = EXCLUDED.first_name, username = EXCLUDED.username
	`
	if _, err := s.db.ExecContext(ctx, query, u.ID, u.FirstName, u.Username, u.JoinedAt); err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

// Exists implements Store.
func (s *PostgresStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user %d: %w", id, err)
	}
	return exists, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

// All pages through users by id. Each page is read fully and its rows
// closed before any user is yielded, so callers may write to the store
// from inside the loop.
func (s *PostgresStore) All(ctx context.Context) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		var after int64
		first := true
		for {
			page, err := s.page(ctx, after, first)
			if err != nil {
				yield(User{}, err)
				return
			}
			for _, u := range page {
				if !yield(u, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = page[len(page)-1].ID
			first = false
		}
	}
}

func (s *PostgresStore) page(ctx context.Context, after int64, first bool) ([]User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	// Telegram ids may be negative, so the first page has no lower bound.
	if first {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, first_name, username, joined_at FROM users ORDER BY id LIMIT $1`,
			s.pageSize)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, first_name, username, joined_at FROM users WHERE id > $1 ORDER BY id LIMIT $2`,
			after, s.pageSize)
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	users := make([]User, 0, s.pageSize)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.Username, &u.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Increment implements Counter.
func (s *PostgresStore) Increment(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`
	var v int64
	if err := s.db.QueryRowContext(ctx, query, name).Scan(&v); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return v, nil
}

// Value implements Counter.
func (s *PostgresStore) Value(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = $1`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return v, nil
}

// Ping implements Store.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
