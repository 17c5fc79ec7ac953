package ezlist

import (
	"context"
	"fmt"
)

// guard is a precondition predicate evaluated before an operation body.
// A failing guard short-circuits the operation with a recoverable user
// error that names the blocked operation and its subject address.
type guard func(ctx context.Context) error

// check runs guards in order and stops at the first failure.
func check(ctx context.Context, guards ...guard) error {
	for _, g := range guards {
		if err := g(ctx); err != nil {
			return err
		}
	}
	return nil
}

// guardManaged rejects the operation when subscription management is
// administratively disabled.
func (m *Manager) guardManaged(op, addr string) guard {
	return func(context.Context) error {
		if !m.opts.manageSubscriptions {
			return fmt.Errorf("blocked %s for %s: %w", op, addr, ErrSubscriptionsDisabled)
		}
		return nil
	}
}

// guardSubscriber rejects the operation when addr is not a subscriber.
func (m *Manager) guardSubscriber(op, addr string) guard {
	return func(ctx context.Context) error {
		ok, err := m.store.IsSubscriber(ctx, addr, "")
		if err != nil {
			return fmt.Errorf("check subscriber %s: %w", addr, err)
		}
		if !ok {
			return fmt.Errorf("blocked %s for %s: %w", op, addr, ErrNotSubscriber)
		}
		return nil
	}
}
