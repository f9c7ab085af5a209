package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ots-go/internal/ots"
	"ots-go/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const recordColumns = `token, blob_ref, original_filename, content_type, protected,
	password_hash, raw_key, kdf_salt, base_nonce, attempt_count, ttl_seconds`

// SQLiteStore implements ots.MetadataStore on SQLite.
//
// TTL expiry is enforced by the store itself: every read predicate includes
// an expires_at comparison, so an expired record is indistinguishable from an
// absent one the instant its deadline passes. Expired rows are physically
// purged opportunistically on writes and listings.
//
// AtomicConsume and IncrementAttempt are single statements (DELETE/UPDATE
// with RETURNING), so their at-most-once semantics come directly from
// SQLite's serialized writes; there is no read-then-write window to race.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	clock     ots.Clock
	opTimeout time.Duration
	health    *healthCheck
}

// Options configures timeouts for a SQLiteStore. Zero values select defaults.
type Options struct {
	// OpTimeout bounds every store round trip. Default 5s.
	OpTimeout time.Duration
	// HealthInterval is how long a reachability probe result is cached.
	// Default 15s.
	HealthInterval time.Duration
	// Clock defaults to the real clock.
	Clock ots.Clock
}

func (o *Options) withDefaults() Options {
	out := Options{OpTimeout: 5 * time.Second, HealthInterval: 15 * time.Second, Clock: ots.RealClock{}}
	if o == nil {
		return out
	}
	if o.OpTimeout > 0 {
		out.OpTimeout = o.OpTimeout
	}
	if o.HealthInterval > 0 {
		out.HealthInterval = o.HealthInterval
	}
	if o.Clock != nil {
		out.Clock = o.Clock
	}
	return out
}

// NewSQLiteStore opens (or creates) the store at path and migrates it to the
// latest schema. path can be ":memory:" for tests.
func NewSQLiteStore(path string, opts *Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single record mutation never spans statements, but the driver opens
	// one connection per query; serialize access so RETURNING races resolve
	// inside SQLite rather than as SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	o := opts.withDefaults()
	return &SQLiteStore{
		db:        db,
		path:      path,
		clock:     o.Clock,
		opTimeout: o.OpTimeout,
		health:    newHealthCheck(o.HealthInterval, o.Clock),
	}, nil
}

// guard applies the per-operation timeout and the cached health probe.
// A store that cannot be reached fails closed with ots.ErrStoreUnavailable.
func (s *SQLiteStore) guard(ctx context.Context) (context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	err := s.health.check(ctx, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%w: %v", ots.ErrStoreUnavailable, err)
	}
	return ctx, cancel, nil
}

func (s *SQLiteStore) Put(ctx context.Context, record *ots.FileRecord) error {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	now := s.clock.Now().Unix()

	// Purge anything already past its deadline while we hold a write anyway.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("purging expired records: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO file_records
			(token, blob_ref, original_filename, content_type, protected,
			 password_hash, raw_key, kdf_salt, base_nonce, attempt_count,
			 ttl_seconds, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Token, record.BlobRef, record.OriginalFilename, record.ContentType,
		record.Protected, record.PasswordHash, record.RawKey, record.KDFSalt,
		record.BaseNonce, record.AttemptCount, record.TTLSeconds,
		now, now+record.TTLSeconds)
	if err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, token string) (*ots.FileRecord, error) {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM file_records WHERE token = ? AND expires_at > ?`,
		token, s.clock.Now().Unix())
	return scanRecord(row)
}

func (s *SQLiteStore) IncrementAttempt(ctx context.Context, token string) (int, error) {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	var count int
	err = s.db.QueryRowContext(ctx, `
		UPDATE file_records SET attempt_count = attempt_count + 1
		WHERE token = ? AND expires_at > ?
		RETURNING attempt_count`,
		token, s.clock.Now().Unix()).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing attempt count: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ResetAttempts(ctx context.Context, token string) error {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		`UPDATE file_records SET attempt_count = 0 WHERE token = ? AND expires_at > ?`,
		token, s.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("resetting attempt count: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AtomicConsume(ctx context.Context, token string) (*ots.FileRecord, error) {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	// One statement: read and delete commit together, so exactly one of N
	// racing callers sees the row. A loser gets no row back; reported as
	// absent, never as a conflict, and never retried.
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM file_records
		WHERE token = ? AND expires_at > ?
		RETURNING `+recordColumns,
		token, s.clock.Now().Unix())
	return scanRecord(row)
}

func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, token string) (bool, error) {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	var one int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM file_records WHERE token = ? AND expires_at > ?`,
		token, s.clock.Now().Unix()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking record existence: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	now := s.clock.Now().Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE expires_at <= ?`, now); err != nil {
		return nil, fmt.Errorf("purging expired records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT token FROM file_records WHERE expires_at > ?`, now)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return tokens, nil
}

func (s *SQLiteStore) IncrementCounter(ctx context.Context, name string, delta int64) (int64, error) {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	var value int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = value + excluded.value
		RETURNING value`,
		name, delta).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("incrementing counter %s: %w", name, err)
	}
	return value, nil
}

func (s *SQLiteStore) GetCounter(ctx context.Context, name string) (int64, error) {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	var value int64
	err = s.db.QueryRowContext(ctx, `SELECT value FROM usage_counters WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading counter %s: %w", name, err)
	}
	return value, nil
}

func (s *SQLiteStore) ResetCounters(ctx context.Context, names []string) error {
	ctx, cancel, err := s.guard(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	for _, name := range names {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO usage_counters (name, value) VALUES (?, 0)`, name)
		if err != nil {
			return fmt.Errorf("resetting counter %s: %w", name, err)
		}
	}
	return nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanRecord reads one record row. Returns (nil, nil) when the row is absent.
func scanRecord(row *sql.Row) (*ots.FileRecord, error) {
	var rec ots.FileRecord
	err := row.Scan(&rec.Token, &rec.BlobRef, &rec.OriginalFilename, &rec.ContentType,
		&rec.Protected, &rec.PasswordHash, &rec.RawKey, &rec.KDFSalt,
		&rec.BaseNonce, &rec.AttemptCount, &rec.TTLSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	return &rec, nil
}

// Compile-time check that SQLiteStore implements ots.MetadataStore
var _ ots.MetadataStore = (*SQLiteStore)(nil)
