// Package postgres provides a PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/qll/ezlist/store"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger

	subscribersTable string
	pendingTable     string
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:               db,
		opts:             o,
		logger:           o.logger,
		subscribersTable: o.tablePrefix + "subscribers",
		pendingTable:     o.tablePrefix + "pending",
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Connect initializes the schema.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "table_prefix", s.opts.tablePrefix)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// ensureSchema creates the required tables. The serial id column preserves
// insertion order for Subscribers().
func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				address TEXT NOT NULL UNIQUE,
				deletion_key TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, s.subscribersTable),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				address TEXT NOT NULL UNIQUE,
				activation_key TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, s.pendingTable),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// IsPending reports whether addr has a pending request. A non-empty
// activationKey narrows the match.
func (s *Store) IsPending(ctx context.Context, addr, activationKey string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if addr == "" {
		return false, store.ErrInvalidAddress
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE address = $1)`, s.pendingTable)
	args := []any{addr}
	if activationKey != "" {
		query = fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE address = $1 AND activation_key = $2)`, s.pendingTable)
		args = append(args, activationKey)
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("query pending: %w", err)
	}
	return exists, nil
}

// AddPending records a pending request for addr.
func (s *Store) AddPending(ctx context.Context, addr, activationKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	query := fmt.Sprintf(`INSERT INTO %s (address, activation_key) VALUES ($1, $2)`, s.pendingTable)
	if _, err := s.db.ExecContext(ctx, query, addr, activationKey); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEntry
		}
		return fmt.Errorf("insert pending: %w", err)
	}
	return nil
}

// RemovePending deletes the pending request for addr, if any.
func (s *Store) RemovePending(ctx context.Context, addr string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE address = $1`, s.pendingTable)
	if _, err := s.db.ExecContext(ctx, query, addr); err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}
	return nil
}

// IsSubscriber reports whether addr is a subscriber. A non-empty
// deletionKey narrows the match.
func (s *Store) IsSubscriber(ctx context.Context, addr, deletionKey string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if addr == "" {
		return false, store.ErrInvalidAddress
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE address = $1)`, s.subscribersTable)
	args := []any{addr}
	if deletionKey != "" {
		query = fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE address = $1 AND deletion_key = $2)`, s.subscribersTable)
		args = append(args, deletionKey)
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("query subscriber: %w", err)
	}
	return exists, nil
}

// AddSubscriber records addr as a subscriber.
func (s *Store) AddSubscriber(ctx context.Context, addr, deletionKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	query := fmt.Sprintf(`INSERT INTO %s (address, deletion_key) VALUES ($1, $2)`, s.subscribersTable)
	if _, err := s.db.ExecContext(ctx, query, addr, deletionKey); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEntry
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// Promote atomically converts a pending request into a subscription.
// The pending check, subscriber insert, and pending delete run in a single
// transaction.
func (s *Store) Promote(ctx context.Context, addr, activationKey, deletionKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE address = $1 AND activation_key = $2)`, s.pendingTable)
	if err := tx.GetContext(ctx, &exists, query, addr, activationKey); err != nil {
		return fmt.Errorf("query pending: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}

	query = fmt.Sprintf(`INSERT INTO %s (address, deletion_key) VALUES ($1, $2)`, s.subscribersTable)
	if _, err := tx.ExecContext(ctx, query, addr, deletionKey); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateEntry
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}

	query = fmt.Sprintf(`DELETE FROM %s WHERE address = $1`, s.pendingTable)
	if _, err := tx.ExecContext(ctx, query, addr); err != nil {
		return fmt.Errorf("delete pending: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit promote: %w", err)
	}
	return nil
}

// DeletionKey returns the deletion key stored for addr.
func (s *Store) DeletionKey(ctx context.Context, addr string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}
	if addr == "" {
		return "", store.ErrInvalidAddress
	}

	query := fmt.Sprintf(`SELECT deletion_key FROM %s WHERE address = $1`, s.subscribersTable)
	var key string
	if err := s.db.GetContext(ctx, &key, query, addr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("query deletion key: %w", err)
	}
	return key, nil
}

// RemoveSubscriber deletes the subscriber record for addr.
func (s *Store) RemoveSubscriber(ctx context.Context, addr string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE address = $1`, s.subscribersTable)
	res, err := s.db.ExecContext(ctx, query, addr)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Subscribers returns all subscriber addresses in insertion order.
func (s *Store) Subscribers(ctx context.Context) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT address FROM %s ORDER BY id ASC`, s.subscribersTable)
	var addrs []string
	if err := s.db.SelectContext(ctx, &addrs, query); err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	return addrs, nil
}
