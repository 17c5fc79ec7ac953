package ezlist

import (
	"fmt"
	"testing"
)

func TestNewKey(t *testing.T) {
	t.Run("keys are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			key, err := newKey()
			if err != nil {
				t.Fatalf("newKey() failed: %v", err)
			}
			if seen[key] {
				t.Fatalf("duplicate key %q", key)
			}
			seen[key] = true
		}
	})

	t.Run("keys survive a subject round trip", func(t *testing.T) {
		// A generated key embedded in a command subject must come back
		// out of the parser unchanged.
		key, err := newKey()
		if err != nil {
			t.Fatalf("newKey() failed: %v", err)
		}

		cmd := ParseCommand(fmt.Sprintf("verify <%s>", key))
		if cmd.Intent != IntentVerify || cmd.Token != key {
			t.Errorf("key %q did not round trip, got %+v", key, cmd)
		}

		cmd = ParseCommand(fmt.Sprintf("Re: [List] unsubscribe <%s>", key))
		if cmd.Intent != IntentUnsubscribe || cmd.Token != key {
			t.Errorf("key %q did not round trip, got %+v", key, cmd)
		}
	})

	t.Run("base64 length for 128 bits", func(t *testing.T) {
		key, err := newKey()
		if err != nil {
			t.Fatalf("newKey() failed: %v", err)
		}
		if len(key) != 24 {
			t.Errorf("len(key) = %d, want 24", len(key))
		}
	})
}
