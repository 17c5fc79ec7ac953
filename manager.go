package ezlist

import (
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/qll/ezlist/store"
)

// Manager is the mailing list core: it classifies inbound mail, drives the
// subscription state machine against the store, broadcasts accepted
// content, and composes every outbound notification.
//
// A Manager is stateless between processing passes; all durable state
// lives in the store.
type Manager struct {
	listAddr string
	inbox    Inbox
	sender   Sender
	store    store.Store
	opts     *options
	logger   *slog.Logger
	otel     *otelInstrumentation
}

// NewManager creates a list manager for the given list address.
func NewManager(listAddr string, inbox Inbox, sender Sender, st store.Store, opts ...Option) (*Manager, error) {
	if !isAddress(listAddr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidListAddr, listAddr)
	}
	if inbox == nil {
		return nil, ErrInboxRequired
	}
	if sender == nil {
		return nil, ErrSenderRequired
	}
	if st == nil {
		return nil, ErrStoreRequired
	}

	o := newOptions(opts...)
	otel, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init instrumentation: %w", err)
	}

	return &Manager{
		listAddr: listAddr,
		inbox:    inbox,
		sender:   sender,
		store:    st,
		opts:     o,
		logger:   o.logger,
		otel:     otel,
	}, nil
}

// ListAddress returns the address the manager serves.
func (m *Manager) ListAddress() string {
	return m.listAddr
}

// IsDirectedAtList reports whether the list address appears in any of the
// message's To, Cc, or Bcc headers.
func (m *Manager) IsDirectedAtList(msg *Message) bool {
	for _, header := range []string{"To", "Cc", "Bcc"} {
		for _, addr := range extractAddresses(msg.Header.Get(header)) {
			if addr == m.listAddr {
				return true
			}
		}
	}
	return false
}

// Subscribe starts a subscription for addr: it records a pending request
// and mails addr a confirmation request whose subject embeds the
// activation key. Returns the activation key.
//
// Fails with a user error when subscription management is disabled, addr
// is already a subscriber, or addr already has a live pending request.
func (m *Manager) Subscribe(ctx context.Context, addr string) (string, error) {
	if err := check(ctx, m.guardManaged("subscribe", addr)); err != nil {
		return "", err
	}

	subscribed, err := m.store.IsSubscriber(ctx, addr, "")
	if err != nil {
		return "", fmt.Errorf("check subscriber %s: %w", addr, err)
	}
	if subscribed {
		return "", fmt.Errorf("subscription attempt from %s: %w", addr, ErrAlreadySubscribed)
	}

	activationKey, err := newKey()
	if err != nil {
		return "", err
	}

	if err := m.store.AddPending(ctx, addr, activationKey); err != nil {
		if store.IsDuplicateEntry(err) {
			return "", fmt.Errorf("subscription attempt from %s: %w", addr, ErrAlreadyPending)
		}
		return "", fmt.Errorf("add pending %s: %w", addr, err)
	}

	m.logger.Info("address is now pending verification", "address", addr)
	m.logger.Debug("generated activation key", "address", addr, "key", activationKey)

	subject := fmt.Sprintf("verify <%s>", activationKey)
	if err := m.notify(ctx, addr, subject, m.opts.templates.Subscription, TemplateData{List: m.listAddr}); err != nil {
		return "", err
	}
	return activationKey, nil
}

// Verify completes a subscription: given the activation key previously
// mailed to addr, it promotes the pending request to a subscription in one
// atomic store transaction and mails the welcome message carrying the
// deletion key. Returns the deletion key.
//
// Fails with a user error when subscription management is disabled, addr
// is already a subscriber, or no pending request matches (addr, key).
func (m *Manager) Verify(ctx context.Context, addr, activationKey string) (string, error) {
	if err := check(ctx, m.guardManaged("verify", addr)); err != nil {
		return "", err
	}

	subscribed, err := m.store.IsSubscriber(ctx, addr, "")
	if err != nil {
		return "", fmt.Errorf("check subscriber %s: %w", addr, err)
	}
	if subscribed {
		return "", fmt.Errorf("verification attempt from %s: %w", addr, ErrAlreadySubscribed)
	}

	deletionKey, err := newKey()
	if err != nil {
		return "", err
	}

	if err := m.store.Promote(ctx, addr, activationKey, deletionKey); err != nil {
		switch {
		case store.IsNotFound(err):
			return "", fmt.Errorf("verification for %s failed with activation key %q: %w", addr, activationKey, ErrWrongKey)
		case store.IsDuplicateEntry(err):
			return "", fmt.Errorf("verification attempt from %s: %w", addr, ErrAlreadySubscribed)
		default:
			return "", fmt.Errorf("promote %s: %w", addr, err)
		}
	}

	m.logger.Info("address is now a subscriber", "address", addr)

	data := TemplateData{List: m.listAddr, Key: deletionKey}
	if err := m.notify(ctx, addr, "You have successfully joined the mailing list", m.opts.templates.Welcome, data); err != nil {
		return "", err
	}
	return deletionKey, nil
}

// SendDeletionKey re-sends the stored deletion key to a subscriber, with
// the key embedded in the subject as "unsubscribe <key>".
//
// Fails with a user error when addr is not a subscriber or subscription
// management is disabled.
func (m *Manager) SendDeletionKey(ctx context.Context, addr string) error {
	guards := []guard{
		m.guardSubscriber("send deletion key", addr),
		m.guardManaged("send deletion key", addr),
	}
	if err := check(ctx, guards...); err != nil {
		return err
	}

	deletionKey, err := m.store.DeletionKey(ctx, addr)
	if err != nil {
		return fmt.Errorf("deletion key for %s: %w", addr, err)
	}

	subject := fmt.Sprintf("unsubscribe <%s>", deletionKey)
	return m.notify(ctx, addr, subject, m.opts.templates.DeletionKey, TemplateData{List: m.listAddr})
}

// Unsubscribe removes addr's subscription, authorized by its deletion key,
// and mails a confirmation of removal.
//
// Fails with a user error when addr is not a subscriber, the key does not
// match, or subscription management is disabled.
func (m *Manager) Unsubscribe(ctx context.Context, addr, deletionKey string) error {
	guards := []guard{
		m.guardSubscriber("unsubscribe", addr),
		m.guardManaged("unsubscribe", addr),
	}
	if err := check(ctx, guards...); err != nil {
		return err
	}

	ok, err := m.store.IsSubscriber(ctx, addr, deletionKey)
	if err != nil {
		return fmt.Errorf("check subscriber %s: %w", addr, err)
	}
	if !ok {
		return fmt.Errorf("unsubscription for %s failed with deletion key %q: %w", addr, deletionKey, ErrWrongKey)
	}

	if err := m.store.RemoveSubscriber(ctx, addr); err != nil {
		return fmt.Errorf("remove subscriber %s: %w", addr, err)
	}

	m.logger.Info("unsubscribed address", "address", addr)

	return m.notify(ctx, addr, "You have successfully unsubscribed from this list", m.opts.templates.Unsubscribe, TemplateData{List: m.listAddr})
}

// notify renders a template and delivers the resulting notification to a
// single recipient.
func (m *Manager) notify(ctx context.Context, to, subject string, tmpl *template.Template, data TemplateData) error {
	body, err := render(tmpl, data)
	if err != nil {
		return err
	}

	msg := m.composeNotification(to, subject, body)
	if err := m.sender.Send(ctx, m.listAddr, to, msg); err != nil {
		return fmt.Errorf("send %s notification to %s: %w", tmpl.Name(), to, err)
	}
	return nil
}
