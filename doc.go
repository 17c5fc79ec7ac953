// Package ezlist implements a minimal self-hosted mailing list manager.
//
// The manager polls a mailbox for inbound mail and interprets each message
// either as an administrative command (subscribe, verify, unsubscribe) or as
// content to broadcast to all subscribers. Subscriber state is kept in a
// pluggable store (see the store package and its memory, postgres, mongo,
// and redis backends).
//
// # Basic Usage
//
//	st := memory.New()
//	mgr, err := ezlist.NewManager("list@example.com", inbox, sender, st,
//	    ezlist.WithSubjectPrefix("[List]"),
//	    ezlist.WithSkipSender(true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// One pass over the mailbox; call at a fixed polling interval.
//	if err := mgr.Process(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Subscription Protocol
//
// A message's subject line selects the operation:
//
//   - "subscribe" asks to join; the manager replies with a confirmation
//     request whose subject embeds "verify <key>"
//   - "verify <key>" proves control of the address and completes the
//     subscription; the welcome mail carries the deletion key
//   - "unsubscribe" re-sends the deletion key to a subscriber
//   - "unsubscribe <key>" removes the subscription
//   - anything else is forwarded to all subscribers, provided the sender
//     is a subscriber
//
// Policy violations (double subscribe, wrong key, posts from strangers) are
// recoverable user errors: they are logged, the offending message is
// consumed, and the sender is never notified. Anything else is logged with
// full context and the message is left in the mailbox for the next pass.
package ezlist
