// Package smtp provides an SMTP submission transport for the list
// manager, built on github.com/emersion/go-smtp.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/qll/ezlist"
	"github.com/qll/ezlist/retry"
)

// Sender submits messages through a single SMTP connection. The
// connection is established lazily on the first Send and kept open
// until Close. When the server drops an idle connection between sends,
// the sender reconnects and retries according to its retry policy.
type Sender struct {
	addr string

	opts   *options
	logger *slog.Logger

	mu     sync.Mutex
	client *gosmtp.Client
}

var _ ezlist.Sender = (*Sender)(nil)

// New creates a sender submitting through the server at addr (host:port).
func New(addr string, opts ...Option) *Sender {
	o := newOptions(opts...)
	o.retry.IsRetryable = isDisconnect
	return &Sender{
		addr:   addr,
		opts:   o,
		logger: o.logger,
	}
}

// Send submits msg with the given envelope sender and recipient.
func (s *Sender) Send(ctx context.Context, from, to string, msg *ezlist.Message) error {
	raw, err := msg.Bytes()
	if err != nil {
		return retry.MarkNotRetryable(fmt.Errorf("failed to serialize message: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return retry.Do(ctx, s.opts.retry, func(ctx context.Context) error {
		client, err := s.connect()
		if err != nil {
			return retry.MarkNotRetryable(err)
		}

		err = s.submit(client, from, to, raw)
		if isDisconnect(err) {
			// Stale connection. Drop it so the next attempt redials.
			s.logger.Debug("smtp connection lost, reconnecting", "error", err)
			client.Close()
			s.client = nil
		}
		return err
	})
}

// connect returns the current connection, dialing a new one if needed.
// Callers must hold s.mu.
func (s *Sender) connect() (*gosmtp.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	client, err := s.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", s.addr, err)
	}

	if s.opts.hello != "" {
		if err := client.Hello(s.opts.hello); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to greet as %s: %w", s.opts.hello, err)
		}
	}

	if s.opts.username != "" {
		auth := sasl.NewPlainClient("", s.opts.username, s.opts.password)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to authenticate as %s: %w", s.opts.username, err)
		}
	}

	s.client = client
	s.logger.Debug("connected to smtp server", "addr", s.addr)
	return client, nil
}

func (s *Sender) dial() (*gosmtp.Client, error) {
	switch s.opts.security {
	case SecurityTLS:
		return gosmtp.DialTLS(s.addr, s.opts.tlsConfig)
	case SecurityNone:
		return gosmtp.Dial(s.addr)
	default:
		return gosmtp.DialStartTLS(s.addr, s.opts.tlsConfig)
	}
}

func (s *Sender) submit(client *gosmtp.Client, from, to string, raw []byte) error {
	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("failed to set sender %s: %w", from, err)
	}
	if err := client.Rcpt(to, nil); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message data: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message data: %w", err)
	}
	return nil
}

// Close sends QUIT and releases the connection. Closing a sender that
// never connected is a no-op.
func (s *Sender) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	client := s.client
	s.client = nil

	if err := client.Quit(); err != nil {
		client.Close()
		return fmt.Errorf("failed to quit: %w", err)
	}
	return nil
}

// isDisconnect reports whether err indicates the server closed the
// connection, as opposed to rejecting the transaction.
func isDisconnect(err error) bool {
	if err == nil {
		return false
	}

	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		// 421 means the server is shutting down the channel.
		return smtpErr.Code == 421
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
