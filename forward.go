package ezlist

import (
	"context"
	"fmt"
	"strings"
)

// Forward broadcasts an accepted list message: it strips all headers not
// on the allow-list, adds the List-Post header, rewrites the subject with
// the list prefix, and delivers one copy per subscriber not in exclude.
//
// Fails with a user error when sender is not a subscriber. A delivery
// failure to one subscriber does not block delivery to the others;
// failures are collected into a PartialDeliveryError.
func (m *Manager) Forward(ctx context.Context, sender string, msg *Message, exclude map[string]struct{}) error {
	if err := check(ctx, m.guardSubscriber("forward", sender)); err != nil {
		return err
	}

	m.logger.Info("forwarding message", "message", describe(msg))

	stripHeaders(msg)
	msg.Header.Set("List-Post", "<mailto:"+m.listAddr+">")
	m.rewriteSubject(msg)

	subscribers, err := m.store.Subscribers(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}

	var delivered []string
	failed := make(map[string]error)
	for _, subscriber := range subscribers {
		if _, skip := exclude[subscriber]; skip {
			continue
		}
		if err := m.sender.Send(ctx, m.listAddr, subscriber, msg); err != nil {
			m.logger.Error("delivery failed", "recipient", subscriber, "error", err)
			failed[subscriber] = err
			m.otel.recordDelivery(ctx, err)
			continue
		}
		delivered = append(delivered, subscriber)
		m.otel.recordDelivery(ctx, nil)
	}

	if len(failed) > 0 {
		return &PartialDeliveryError{Delivered: delivered, Failed: failed}
	}
	return nil
}

// rewriteSubject prepends the list prefix to the clean subject unless it
// already carries the prefix once reply markers are stripped. A message
// without a Subject header gets a synthesized one.
func (m *Manager) rewriteSubject(msg *Message) {
	prefix := m.opts.subjectPrefix

	if !msg.Header.Has("Subject") {
		msg.Header.Set("Subject", prefix+" (empty subject)")
		return
	}

	clean := cleanSubject(msg.Header.Get("Subject"))
	if !strings.HasPrefix(strings.TrimSpace(clean), prefix) {
		msg.Header.Set("Subject", prefix+" "+clean)
	}
}
