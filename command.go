package ezlist

import (
	"regexp"
	"strings"
)

// Intent classifies what an inbound message asks the list to do.
type Intent int

const (
	// IntentForward treats the message as content for broadcast.
	IntentForward Intent = iota
	// IntentSubscribe asks to join the list.
	IntentSubscribe
	// IntentRequestDeletionKey asks for the deletion key to be re-sent.
	IntentRequestDeletionKey
	// IntentVerify proves control of an address with an activation key.
	IntentVerify
	// IntentUnsubscribe removes a subscription with a deletion key.
	IntentUnsubscribe
)

// String returns the intent name for logs and metrics.
func (i Intent) String() string {
	switch i {
	case IntentSubscribe:
		return "subscribe"
	case IntentRequestDeletionKey:
		return "request_deletion_key"
	case IntentVerify:
		return "verify"
	case IntentUnsubscribe:
		return "unsubscribe"
	default:
		return "forward"
	}
}

// Command is a classified subject line. Token carries the key for Verify
// and Unsubscribe intents.
type Command struct {
	Intent Intent
	Token  string
}

var (
	verifyPattern      = regexp.MustCompile(`verify <([A-Za-z0-9+=/]+?)>`)
	unsubscribePattern = regexp.MustCompile(`unsubscribe <([A-Za-z0-9+=/]+?)>`)

	// cleanSubjectPattern strips stacked reply/forward markers such as
	// "Re:", "Aw:", or "Fwd:" from the front of a subject.
	cleanSubjectPattern = regexp.MustCompile(`^(?:\w{2,3}:\s*)*(.*)$`)
)

// ParseCommand classifies a subject line into a Command. Classification
// never fails: anything that is not a recognized command is a Forward.
//
// The checks run in fixed priority order, so a subject that is exactly
// "unsubscribe" requests the deletion key while "unsubscribe <KEY>"
// performs the removal.
func ParseCommand(subject string) Command {
	trimmed := strings.TrimSpace(subject)

	switch {
	case strings.EqualFold(trimmed, "subscribe"):
		return Command{Intent: IntentSubscribe}
	case strings.EqualFold(trimmed, "unsubscribe"):
		return Command{Intent: IntentRequestDeletionKey}
	}

	if m := verifyPattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Intent: IntentVerify, Token: m[1]}
	}
	if m := unsubscribePattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Intent: IntentUnsubscribe, Token: m[1]}
	}

	return Command{Intent: IntentForward}
}

// cleanSubject strips leading reply/forward markers from a subject so the
// list prefix is not compounded across reply chains.
func cleanSubject(subject string) string {
	if m := cleanSubjectPattern.FindStringSubmatch(subject); m != nil {
		return m[1]
	}
	return strings.TrimSpace(subject)
}
