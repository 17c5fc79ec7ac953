package ezlist

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for the ezlist package.
// Use errors.Is() to check for these errors.
var (
	// ErrUser is the root of all recoverable user errors: policy or
	// precondition violations caused by the sender of a message. User
	// errors are logged and swallowed; the offending message is consumed
	// and the sender is never notified.
	ErrUser = errors.New("ezlist: rejected")

	// ErrSubscriptionsDisabled is returned when subscription management
	// is administratively disabled.
	ErrSubscriptionsDisabled = fmt.Errorf("%w: subscription management disabled", ErrUser)

	// ErrAlreadySubscribed is returned when the address is already a
	// subscriber.
	ErrAlreadySubscribed = fmt.Errorf("%w: already subscribed", ErrUser)

	// ErrAlreadyPending is returned when the address already has a live
	// pending request.
	ErrAlreadyPending = fmt.Errorf("%w: verification already pending", ErrUser)

	// ErrNotSubscriber is returned when the address is not a subscriber.
	ErrNotSubscriber = fmt.Errorf("%w: not a subscriber", ErrUser)

	// ErrWrongKey is returned when the presented activation or deletion
	// key does not match the stored one.
	ErrWrongKey = fmt.Errorf("%w: wrong key", ErrUser)

	// ErrPartialDelivery is returned when a broadcast reached some but
	// not all subscribers. It is not a user error: the message stays in
	// the mailbox and is retried on the next pass.
	ErrPartialDelivery = errors.New("ezlist: partial delivery")

	// Constructor argument errors.
	ErrStoreRequired   = errors.New("ezlist: store is required")
	ErrInboxRequired   = errors.New("ezlist: inbox is required")
	ErrSenderRequired  = errors.New("ezlist: sender is required")
	ErrInvalidListAddr = errors.New("ezlist: invalid list address")
)

// IsUserError reports whether err is a recoverable user error.
func IsUserError(err error) bool {
	return errors.Is(err, ErrUser)
}

// PartialDeliveryError reports the outcome of a broadcast where delivery to
// one or more subscribers failed.
type PartialDeliveryError struct {
	// Delivered is the list of addresses that received the message.
	Delivered []string
	// Failed maps each failed address to its delivery error.
	Failed map[string]error
}

// Error formats the failure summary, truncating after five recipients.
func (e *PartialDeliveryError) Error() string {
	addrs := make([]string, 0, len(e.Failed))
	for addr := range e.Failed {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	const maxListed = 5
	msg := fmt.Sprintf("%v: %d delivered, %d failed:", ErrPartialDelivery, len(e.Delivered), len(e.Failed))
	for i, addr := range addrs {
		if i == maxListed {
			msg += fmt.Sprintf(" ...and %d more", len(addrs)-maxListed)
			break
		}
		msg += fmt.Sprintf(" %s (%v)", addr, e.Failed[addr])
	}
	return msg
}

// Unwrap allows errors.Is(err, ErrPartialDelivery).
func (e *PartialDeliveryError) Unwrap() error {
	return ErrPartialDelivery
}
