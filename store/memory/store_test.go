package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/qll/ezlist/store"
)

func newConnected(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestConnectionState(t *testing.T) {
	ctx := context.Background()

	t.Run("operations fail before connect", func(t *testing.T) {
		s := New()
		if _, err := s.IsSubscriber(ctx, "a@example.com", ""); !errors.Is(err, store.ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("double connect fails", func(t *testing.T) {
		s := newConnected(t)
		if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}
	})
}

func TestPending(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	if err := s.AddPending(ctx, "a@example.com", "key1"); err != nil {
		t.Fatalf("AddPending() failed: %v", err)
	}

	t.Run("exact key matches", func(t *testing.T) {
		ok, err := s.IsPending(ctx, "a@example.com", "key1")
		if err != nil || !ok {
			t.Errorf("IsPending(key1) = %v, %v", ok, err)
		}
	})

	t.Run("empty key matches any", func(t *testing.T) {
		ok, err := s.IsPending(ctx, "a@example.com", "")
		if err != nil || !ok {
			t.Errorf("IsPending(\"\") = %v, %v", ok, err)
		}
	})

	t.Run("wrong key does not match", func(t *testing.T) {
		ok, err := s.IsPending(ctx, "a@example.com", "other")
		if err != nil || ok {
			t.Errorf("IsPending(other) = %v, %v", ok, err)
		}
	})

	t.Run("second pending request is a duplicate", func(t *testing.T) {
		err := s.AddPending(ctx, "a@example.com", "key2")
		if !store.IsDuplicateEntry(err) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
	})

	t.Run("remove clears the entry", func(t *testing.T) {
		if err := s.RemovePending(ctx, "a@example.com"); err != nil {
			t.Fatalf("RemovePending() failed: %v", err)
		}
		if ok, _ := s.IsPending(ctx, "a@example.com", ""); ok {
			t.Error("expected no pending entry after removal")
		}
	})

	t.Run("empty address is invalid", func(t *testing.T) {
		if err := s.AddPending(ctx, "", "key"); !errors.Is(err, store.ErrInvalidAddress) {
			t.Errorf("expected ErrInvalidAddress, got %v", err)
		}
	})
}

func TestSubscribers(t *testing.T) {
	ctx := context.Background()
	s := newConnected(t)

	if err := s.AddSubscriber(ctx, "a@example.com", "keyA"); err != nil {
		t.Fatalf("AddSubscriber() failed: %v", err)
	}

	t.Run("membership checks", func(t *testing.T) {
		if ok, _ := s.IsSubscriber(ctx, "a@example.com", ""); !ok {
			t.Error("expected a@example.com to be a subscriber")
		}
		if ok, _ := s.IsSubscriber(ctx, "a@example.com", "keyA"); !ok {
			t.Error("expected the exact key to match")
		}
		if ok, _ := s.IsSubscriber(ctx, "a@example.com", "wrong"); ok {
			t.Error("a wrong key must not match")
		}
		if ok, _ := s.IsSubscriber(ctx, "b@example.com", ""); ok {
			t.Error("unknown address must not be a subscriber")
		}
	})

	t.Run("duplicate subscriber rejected", func(t *testing.T) {
		err := s.AddSubscriber(ctx, "a@example.com", "keyB")
		if !store.IsDuplicateEntry(err) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
	})

	t.Run("deletion key lookup", func(t *testing.T) {
		key, err := s.DeletionKey(ctx, "a@example.com")
		if err != nil || key != "keyA" {
			t.Errorf("DeletionKey() = %q, %v", key, err)
		}
		if _, err := s.DeletionKey(ctx, "nobody@example.com"); !store.IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("insertion order is stable", func(t *testing.T) {
		if err := s.AddSubscriber(ctx, "c@example.com", "keyC"); err != nil {
			t.Fatal(err)
		}
		if err := s.AddSubscriber(ctx, "b@example.com", "keyB"); err != nil {
			t.Fatal(err)
		}

		got, err := s.Subscribers(ctx)
		if err != nil {
			t.Fatalf("Subscribers() failed: %v", err)
		}
		want := []string{"a@example.com", "c@example.com", "b@example.com"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Subscribers() = %v, want %v", got, want)
		}
	})

	t.Run("remove subscriber", func(t *testing.T) {
		if err := s.RemoveSubscriber(ctx, "c@example.com"); err != nil {
			t.Fatalf("RemoveSubscriber() failed: %v", err)
		}
		if ok, _ := s.IsSubscriber(ctx, "c@example.com", ""); ok {
			t.Error("expected c@example.com to be gone")
		}

		got, _ := s.Subscribers(ctx)
		want := []string{"a@example.com", "b@example.com"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Subscribers() = %v, want %v", got, want)
		}

		if err := s.RemoveSubscriber(ctx, "c@example.com"); !store.IsNotFound(err) {
			t.Errorf("expected ErrNotFound on double removal, got %v", err)
		}
	})
}

func TestPromote(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		s := newConnected(t)
		if err := s.AddPending(ctx, "a@example.com", "activation"); err != nil {
			t.Fatal(err)
		}

		if err := s.Promote(ctx, "a@example.com", "activation", "deletion"); err != nil {
			t.Fatalf("Promote() failed: %v", err)
		}

		if ok, _ := s.IsSubscriber(ctx, "a@example.com", "deletion"); !ok {
			t.Error("expected a subscription under the deletion key")
		}
		if ok, _ := s.IsPending(ctx, "a@example.com", ""); ok {
			t.Error("expected the pending entry to be consumed")
		}
	})

	t.Run("wrong activation key", func(t *testing.T) {
		s := newConnected(t)
		if err := s.AddPending(ctx, "a@example.com", "activation"); err != nil {
			t.Fatal(err)
		}

		err := s.Promote(ctx, "a@example.com", "bogus", "deletion")
		if !store.IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		// The pending entry must survive a failed promotion.
		if ok, _ := s.IsPending(ctx, "a@example.com", "activation"); !ok {
			t.Error("expected the pending entry to survive")
		}
	})

	t.Run("no pending entry", func(t *testing.T) {
		s := newConnected(t)
		err := s.Promote(ctx, "a@example.com", "activation", "deletion")
		if !store.IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("already subscribed", func(t *testing.T) {
		s := newConnected(t)
		if err := s.AddPending(ctx, "a@example.com", "activation"); err != nil {
			t.Fatal(err)
		}
		if err := s.AddSubscriber(ctx, "a@example.com", "deletion"); err != nil {
			t.Fatal(err)
		}

		err := s.Promote(ctx, "a@example.com", "activation", "other")
		if !store.IsDuplicateEntry(err) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
	})
}
