package ezlist

import (
	"context"
	"time"
)

// Process drives one pass over the mailbox: it acquires the mailbox and
// transport connections, dispatches every pending message to the state
// machine or the forwarder, and releases the connections on every exit
// path.
//
// Per message:
//   - success or recoverable user error: the message is acknowledged
//     (marked for deletion); user errors are logged at warning level
//   - unexpected error: logged at error level with full context, and the
//     message is left in the mailbox for the next pass
//
// A single message's failure never aborts the pass.
func (m *Manager) Process(ctx context.Context) (retErr error) {
	start := time.Now()
	ctx, endSpan := m.otel.startSpan(ctx, "ezlist.process")
	defer func() {
		m.otel.recordProcess(ctx, time.Since(start), retErr)
		endSpan(retErr)
	}()

	if err := m.inbox.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := m.inbox.Close(ctx); err != nil {
			m.logger.Error("failed to close inbox", "error", err)
		}
		if err := m.sender.Close(ctx); err != nil {
			m.logger.Error("failed to close sender", "error", err)
		}
	}()

	iter := m.inbox.Messages(ctx)
	for {
		ok, err := iter.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		id, msg := iter.Message()
		err = m.dispatch(ctx, msg)
		if err != nil && !IsUserError(err) {
			m.logger.Error("failed to process message",
				"message", describe(msg),
				"error", err,
			)
			continue // leave unacknowledged for the next pass
		}
		if err != nil {
			m.logger.Warn("rejected message", "error", err)
		}

		if err := m.inbox.Delete(ctx, id); err != nil {
			m.logger.Error("failed to acknowledge message",
				"message", describe(msg),
				"error", err,
			)
		}
	}

	return nil
}

// dispatch classifies one message and runs the matching operation.
func (m *Manager) dispatch(ctx context.Context, msg *Message) error {
	sender := senderAddress(msg)

	if !m.IsDirectedAtList(msg) {
		m.logger.Debug("message not directed at list", "message", describe(msg))
		return nil
	}

	cmd := ParseCommand(msg.Subject())
	var err error
	switch cmd.Intent {
	case IntentSubscribe:
		_, err = m.Subscribe(ctx, sender)
	case IntentRequestDeletionKey:
		err = m.SendDeletionKey(ctx, sender)
	case IntentVerify:
		_, err = m.Verify(ctx, sender, cmd.Token)
	case IntentUnsubscribe:
		err = m.Unsubscribe(ctx, sender, cmd.Token)
	default:
		exclude := map[string]struct{}{}
		if m.opts.skipSender {
			exclude[sender] = struct{}{}
		}
		err = m.Forward(ctx, sender, msg, exclude)
	}

	m.otel.recordCommand(ctx, cmd.Intent, err)
	return err
}
