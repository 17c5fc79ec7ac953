package mongo

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultDatabase              = "ezlist"
	DefaultSubscribersCollection = "subscribers"
	DefaultPendingCollection     = "pending"
	DefaultTimeout               = 10 * time.Second
)

// options holds MongoDB store configuration.
type options struct {
	database               string
	subscribersCollection  string
	pendingCollection      string
	timeout                time.Duration
	logger                 *slog.Logger
	disableTransactions    bool
}

func newOptions(opts ...Option) *options {
	o := &options{
		database:              DefaultDatabase,
		subscribersCollection: DefaultSubscribersCollection,
		pendingCollection:     DefaultPendingCollection,
		timeout:               DefaultTimeout,
		logger:                slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures a MongoDB store.
type Option func(*options)

// WithDatabase sets the database name.
func WithDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.database = name
		}
	}
}

// WithCollections sets the subscribers and pending collection names.
func WithCollections(subscribers, pending string) Option {
	return func(o *options) {
		if subscribers != "" {
			o.subscribersCollection = subscribers
		}
		if pending != "" {
			o.pendingCollection = pending
		}
	}
}

// WithTimeout sets the operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithoutTransactions disables multi-document transactions for Promote.
// Use only against standalone mongod instances that do not support
// transactions; the unique index on address still prevents double
// subscription, but a crash between the two writes can leave a stale
// pending document behind.
func WithoutTransactions() Option {
	return func(o *options) {
		o.disableTransactions = true
	}
}
