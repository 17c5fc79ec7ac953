package imap

import (
	"crypto/tls"
	"log/slog"
)

// Security selects how the connection to the IMAP server is protected.
type Security int

const (
	// SecurityTLS connects over implicit TLS (usually port 993).
	SecurityTLS Security = iota
	// SecurityStartTLS connects in cleartext and upgrades via STARTTLS.
	SecurityStartTLS
	// SecurityNone connects without any transport security. Only
	// suitable for local testing.
	SecurityNone
)

type options struct {
	logger    *slog.Logger
	mailbox   string
	security  Security
	tlsConfig *tls.Config
}

// Option configures the inbox.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		logger:   slog.Default(),
		mailbox:  "INBOX",
		security: SecurityTLS,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used by the inbox.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMailbox sets the mailbox that is polled for messages.
// Defaults to INBOX.
func WithMailbox(mailbox string) Option {
	return func(o *options) {
		if mailbox != "" {
			o.mailbox = mailbox
		}
	}
}

// WithSecurity selects the transport security mode.
// Defaults to SecurityTLS.
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
