package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown or expired tokens.
var ErrNotFound = errors.New("session token not found")

// PendingSession is the candidate context waiting to be exchanged for a
// realtime credential.
type PendingSession struct {
	Token     string    `json:"token"`
	Resume    string    `json:"-"`
	JobInfo   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Store issues and expires pending-session tokens.
type Store interface {
	// Create stores a new pending session under a fresh random token.
	Create(ctx context.Context, resume, jobInfo string) (PendingSession, error)
	// IsValid reports whether token is known and within its TTL. Expired
	// records are removed as a side effect.
	IsValid(ctx context.Context, token string) bool
	// Lookup returns the pending session without removing it.
	Lookup(ctx context.Context, token string) (PendingSession, error)
	Delete(ctx context.Context, token string) error
	// Take removes and returns the pending session in one step, so only one
	// caller can claim a token. Unknown and expired tokens yield ErrNotFound.
	Take(ctx context.Context, token string) (PendingSession, error)
	// Restore puts back a session obtained from Take. The original CreatedAt
	// is kept, so the TTL is not extended; an already expired session is
	// dropped.
	Restore(ctx context.Context, p PendingSession) error
	// ExpireStale removes every record older than the TTL and returns how many
	// were removed.
	ExpireStale(ctx context.Context) (int, error)
	PendingCount(ctx context.Context) (int, error)
	Close() error
}

// CreateRequest is the POST /session payload.
type CreateRequest struct {
	Resume  string `json:"resume"`
	JobInfo string `json:"jobInfo"`
}

// CreateResponse is returned after a token has been issued.
type CreateResponse struct {
	SessionToken string `json:"sessionToken"`
	Status       string `json:"status"`
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func expired(createdAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) > ttl
}
