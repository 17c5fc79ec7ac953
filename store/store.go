// Package store defines the durable subscriber storage contract for a
// mailing list. Implementations are in store/memory, store/postgres,
// store/mongo, and store/redis subpackages.
//
// The store keeps two record kinds, both keyed by email address:
//
//   - pending requests: {address, activation key} for addresses that asked
//     to subscribe but have not proven control of their mailbox yet
//   - subscribers: {address, deletion key} for verified members
//
// Each backend enforces at most one live record of each kind per address.
// Promote is the only multi-record mutation and must execute as a single
// transaction so a crash can never leave an address half-verified.
package store

import "context"

// Store is the storage interface for subscriber state.
//
// All operations must be safe for concurrent use, although the list manager
// itself drives them from a single goroutine. Implementations must rely on
// database-level atomicity (transactions, unique constraints) rather than
// external locking.
type Store interface {
	// Connect establishes the backend connection and bootstraps schema
	// or indexes. Returns ErrAlreadyConnected on a second call.
	Connect(ctx context.Context) error

	// Close marks the store as disconnected. The caller owns the lifetime
	// of any injected client or connection pool.
	Close(ctx context.Context) error

	// IsPending reports whether addr has a live pending request. A
	// non-empty activationKey narrows the match to that exact key.
	IsPending(ctx context.Context, addr, activationKey string) (bool, error)

	// AddPending records a pending request for addr. Returns
	// ErrDuplicateEntry if addr already has a live pending request.
	AddPending(ctx context.Context, addr, activationKey string) error

	// RemovePending deletes the pending request for addr, if any.
	RemovePending(ctx context.Context, addr string) error

	// IsSubscriber reports whether addr is a subscriber. A non-empty
	// deletionKey narrows the match to that exact key.
	IsSubscriber(ctx context.Context, addr, deletionKey string) (bool, error)

	// AddSubscriber records addr as a subscriber. Returns
	// ErrDuplicateEntry if addr is already a subscriber.
	AddSubscriber(ctx context.Context, addr, deletionKey string) error

	// Promote atomically turns a pending request into a subscription:
	// it checks that addr has a pending request with activationKey,
	// inserts the subscriber record, and deletes the pending request,
	// all in one transaction. Returns ErrNotFound if no matching pending
	// request exists and ErrDuplicateEntry if addr is already subscribed.
	Promote(ctx context.Context, addr, activationKey, deletionKey string) error

	// DeletionKey returns the deletion key stored for addr.
	// Returns ErrNotFound if addr is not a subscriber.
	DeletionKey(ctx context.Context, addr string) (string, error)

	// RemoveSubscriber deletes the subscriber record for addr.
	// Returns ErrNotFound if addr is not a subscriber.
	RemoveSubscriber(ctx context.Context, addr string) error

	// Subscribers returns all subscriber addresses in stable insertion
	// order.
	Subscribers(ctx context.Context) ([]string, error)
}
