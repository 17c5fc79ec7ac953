package imap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"

	"github.com/qll/ezlist"
)

func testMessage(t *testing.T, subject string) *ezlist.Message {
	t.Helper()
	raw := "From: sender@example.com\r\n" +
		"To: list@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		"body\r\n"
	msg, err := ezlist.ReadMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("failed to build test message: %v", err)
	}
	return msg
}

func newTestIter(uids []imap.UID, fetch func(imap.UID) (*ezlist.Message, error)) *messageIter {
	in := New("imap.example.com:993", "user", "pass")
	in.connected = 1
	return &messageIter{
		inbox:    in,
		fetch:    fetch,
		searched: true,
		uids:     uids,
		pos:      -1,
	}
}

func TestMessageIterNext(t *testing.T) {
	ctx := context.Background()

	t.Run("yields every readable message", func(t *testing.T) {
		it := newTestIter([]imap.UID{4, 7}, func(uid imap.UID) (*ezlist.Message, error) {
			return testMessage(t, fmt.Sprintf("message %d", uid)), nil
		})

		var ids []string
		for {
			ok, err := it.Next(ctx)
			if err != nil {
				t.Fatalf("Next() failed: %v", err)
			}
			if !ok {
				break
			}
			id, _ := it.Message()
			ids = append(ids, id)
		}
		if len(ids) != 2 || ids[0] != "4" || ids[1] != "7" {
			t.Errorf("iterated ids = %v, want [4 7]", ids)
		}
	})

	t.Run("an unreadable message does not block the mail behind it", func(t *testing.T) {
		it := newTestIter([]imap.UID{1, 2, 3}, func(uid imap.UID) (*ezlist.Message, error) {
			if uid == 1 {
				return nil, fmt.Errorf("failed to parse message %d: malformed header", uid)
			}
			return testMessage(t, "subscribe"), nil
		})

		var ids []string
		for {
			ok, err := it.Next(ctx)
			if err != nil {
				t.Fatalf("Next() failed: %v", err)
			}
			if !ok {
				break
			}
			id, _ := it.Message()
			ids = append(ids, id)
		}
		if len(ids) != 2 || ids[0] != "2" || ids[1] != "3" {
			t.Errorf("iterated ids = %v, want [2 3]", ids)
		}
	})

	t.Run("a mailbox full of unreadable messages ends the pass cleanly", func(t *testing.T) {
		it := newTestIter([]imap.UID{1, 2}, func(uid imap.UID) (*ezlist.Message, error) {
			return nil, errors.New("malformed header")
		})

		ok, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if ok {
			t.Error("expected the iterator to be exhausted")
		}
	})

	t.Run("fails when the inbox is not connected", func(t *testing.T) {
		it := newTestIter(nil, nil)
		it.inbox.connected = 0

		if _, err := it.Next(ctx); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})
}
