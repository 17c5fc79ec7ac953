package ezlist

import "context"

// Inbox yields the pending inbound messages of the list's mailbox.
// Implementations hold one connection per processing pass: Connect is
// called at the start of a pass and Close is guaranteed to run at its end,
// whatever the outcome.
type Inbox interface {
	// Connect acquires the mailbox connection.
	Connect(ctx context.Context) error

	// Close releases the connection. Messages marked for deletion are
	// removed from the mailbox at this point.
	Close(ctx context.Context) error

	// Messages returns an iterator over all pending messages, in the
	// mailbox's native return order. The iterator is lazy, finite, and
	// not restartable within a pass.
	Messages(ctx context.Context) MessageIter

	// Delete marks the message with the given opaque id as processed.
	Delete(ctx context.Context, id string) error
}

// MessageIter provides pull-based access to inbound messages.
// Use Next() to advance, Message() to get the current message.
//
// Example:
//
//	iter := inbox.Messages(ctx)
//	for {
//	    ok, err := iter.Next(ctx)
//	    if err != nil || !ok {
//	        break
//	    }
//	    id, msg := iter.Message()
//	    // process message
//	}
type MessageIter interface {
	// Next advances to the next message. It returns false when the
	// mailbox is exhausted. Errors are mailbox-level and end the pass;
	// implementations skip over individual messages they cannot read,
	// leaving them in the mailbox.
	Next(ctx context.Context) (bool, error)

	// Message returns the current message and its opaque mailbox id.
	// Only valid after a successful Next().
	Message() (id string, msg *Message)
}

// Sender delivers a composed message to a single recipient. Implementations
// may connect lazily and are expected to survive one stale-connection
// reconnect per delivery; anything beyond that surfaces as an error.
type Sender interface {
	// Send delivers msg from the given envelope sender to one recipient.
	Send(ctx context.Context, from, to string, msg *Message) error

	// Close releases the transport connection, if one was established.
	Close(ctx context.Context) error
}
