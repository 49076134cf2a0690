package server

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// SessionRecord is the non-secret bookkeeping row kept for a session: role,
// how far the protocol has progressed, and its outcome. No key material,
// scalar, or plaintext value is ever persisted here — only metadata needed
// for the expiry sweep and operational visibility, mirroring the way the
// teacher's db.go keeps issuer/redemption bookkeeping separate from the
// actual cryptographic secrets held in memory.
type SessionRecord struct {
	ID            string    `db:"id"`
	Role          string    `db:"role"`
	RoundReached  int       `db:"round_reached"`
	Cardinality   *int64    `db:"cardinality"`
	Completed     bool      `db:"completed"`
	CreatedAt     time.Time `db:"created_at"`
	LastUpdatedAt time.Time `db:"last_updated_at"`
}

var (
	// ErrSessionNotFound is returned when a ledger lookup misses.
	ErrSessionNotFound = errors.New("server: session not found")
)

// Ledger persists session bookkeeping rows to Postgres via sqlx, the same
// driver pairing (jmoiron/sqlx over lib/pq) the teacher's db.go uses for
// issuer/redemption storage.
type Ledger struct {
	db *sqlx.DB
}

// NewLedger opens a connection pool against connectionURI.
func NewLedger(connectionURI string, maxConns int) (*Ledger, error) {
	db, err := sqlx.Connect("postgres", connectionURI)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	return &Ledger{db: db}, nil
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() error { return l.db.Close() }

// CreateSession inserts a new bookkeeping row for a freshly started session.
func (l *Ledger) CreateSession(id, role string) error {
	_, err := l.db.Exec(
		`INSERT INTO sessions (id, role, round_reached, completed, created_at, last_updated_at)
		 VALUES ($1, $2, 0, false, now(), now())`, id, role)
	return err
}

// AdvanceRound records that a session has reached round.
func (l *Ledger) AdvanceRound(id string, round int) error {
	_, err := l.db.Exec(
		`UPDATE sessions SET round_reached = $2, last_updated_at = now() WHERE id = $1`, id, round)
	return err
}

// CompleteSession records the final cardinality and marks a session done.
func (l *Ledger) CompleteSession(id string, cardinality int64) error {
	_, err := l.db.Exec(
		`UPDATE sessions SET completed = true, cardinality = $2, last_updated_at = now() WHERE id = $1`,
		id, cardinality)
	return err
}

// FetchSession retrieves the bookkeeping row for id.
func (l *Ledger) FetchSession(id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := l.db.Get(&rec, `SELECT id, role, round_reached, cardinality, completed, created_at, last_updated_at
		FROM sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ExpireStale deletes bookkeeping rows for sessions that have not advanced
// in longer than ttl and never completed — the persisted-side counterpart
// to the in-memory cache TTL, swept periodically by the cron job.
func (l *Ledger) ExpireStale(ttl time.Duration) (int64, error) {
	res, err := l.db.Exec(
		`DELETE FROM sessions WHERE completed = false AND last_updated_at < now() - make_interval(secs => $1)`,
		ttl.Seconds())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
