package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore shares pending sessions between server replicas.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string, ttl time.Duration, opts ...Option) (*PostgresStore, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	o := buildOptions(opts)
	return &PostgresStore{pool: pool, ttl: ttl, now: o.now}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pending_sessions (
			token TEXT PRIMARY KEY,
			resume TEXT NOT NULL,
			job_info TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_sessions_created ON pending_sessions (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, resume, jobInfo string) (PendingSession, error) {
	p := PendingSession{
		Token:     uuid.NewString(),
		Resume:    resume,
		JobInfo:   jobInfo,
		CreatedAt: s.now(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_sessions (token, resume, job_info, created_at) VALUES ($1, $2, $3, $4)`,
		p.Token, p.Resume, p.JobInfo, p.CreatedAt,
	)
	if err != nil {
		return PendingSession{}, fmt.Errorf("insert pending session: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) IsValid(ctx context.Context, token string) bool {
	_, err := s.Lookup(ctx, token)
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("session store: validate token failed: %v", err)
	}
	return err == nil
}

func (s *PostgresStore) Lookup(ctx context.Context, token string) (PendingSession, error) {
	p := PendingSession{Token: token}
	err := s.pool.QueryRow(ctx,
		`SELECT resume, job_info, created_at FROM pending_sessions WHERE token=$1`,
		token,
	).Scan(&p.Resume, &p.JobInfo, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingSession{}, ErrNotFound
	}
	if err != nil {
		return PendingSession{}, fmt.Errorf("query pending session: %w", err)
	}
	if expired(p.CreatedAt, s.now(), s.ttl) {
		if err := s.Delete(ctx, token); err != nil {
			log.Printf("session store: evict expired token failed: %v", err)
		}
		return PendingSession{}, ErrNotFound
	}
	return p, nil
}

func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_sessions WHERE token=$1`, token); err != nil {
		return fmt.Errorf("delete pending session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Take(ctx context.Context, token string) (PendingSession, error) {
	p := PendingSession{Token: token}
	err := s.pool.QueryRow(ctx,
		`DELETE FROM pending_sessions WHERE token=$1 RETURNING resume, job_info, created_at`,
		token,
	).Scan(&p.Resume, &p.JobInfo, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingSession{}, ErrNotFound
	}
	if err != nil {
		return PendingSession{}, fmt.Errorf("take pending session: %w", err)
	}
	if expired(p.CreatedAt, s.now(), s.ttl) {
		return PendingSession{}, ErrNotFound
	}
	return p, nil
}

func (s *PostgresStore) Restore(ctx context.Context, p PendingSession) error {
	if expired(p.CreatedAt, s.now(), s.ttl) {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_sessions (token, resume, job_info, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token) DO NOTHING`,
		p.Token, p.Resume, p.JobInfo, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("restore pending session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	tag, err := s.pool.Exec(ctx, `DELETE FROM pending_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire pending sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM pending_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending sessions: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
