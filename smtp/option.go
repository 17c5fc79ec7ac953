package smtp

import (
	"crypto/tls"
	"log/slog"

	"github.com/qll/ezlist/retry"
)

// Security selects how the connection to the SMTP server is protected.
type Security int

const (
	// SecurityStartTLS connects in cleartext and upgrades via STARTTLS.
	SecurityStartTLS Security = iota
	// SecurityTLS connects over implicit TLS (usually port 465).
	SecurityTLS
	// SecurityNone connects without any transport security. Only
	// suitable for local testing.
	SecurityNone
)

type options struct {
	logger    *slog.Logger
	security  Security
	tlsConfig *tls.Config
	hello     string
	username  string
	password  string
	retry     retry.Config
}

// Option configures the sender.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		logger:   slog.Default(),
		security: SecurityStartTLS,
		retry: retry.Config{
			MaxRetries: 1,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used by the sender.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSecurity selects the transport security mode.
// Defaults to SecurityStartTLS.
func WithSecurity(security Security) Option {
	return func(o *options) {
		o.security = security
	}
}

// WithTLSConfig sets a custom TLS configuration for TLS and STARTTLS
// connections.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = cfg
	}
}

// WithHello overrides the domain announced in the HELO/EHLO greeting.
// Defaults to localhost.
func WithHello(domain string) Option {
	return func(o *options) {
		o.hello = domain
	}
}

// WithCredentials enables PLAIN authentication with the given
// credentials. Without credentials the sender submits unauthenticated.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithRetry overrides the retry policy used when the server drops the
// connection between sends. The default reconnects and retries once
// after a short backoff.
func WithRetry(cfg retry.Config) Option {
	return func(o *options) {
		o.retry = cfg
	}
}
