package redis

import (
	"context"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/qll/ezlist/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := New(client, WithKeyPrefix("test:"))
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestConnectionState(t *testing.T) {
	ctx := context.Background()

	t.Run("operations fail before connect", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })

		s := New(client)
		if _, err := s.IsSubscriber(ctx, "a@example.com", ""); !store.IsNotConnected(err) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("double connect fails", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Connect(ctx); err != store.ErrAlreadyConnected {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}
	})
}

func TestPendingLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AddPending(ctx, "a@example.com", "key1"); err != nil {
		t.Fatalf("AddPending() failed: %v", err)
	}

	if ok, err := s.IsPending(ctx, "a@example.com", "key1"); err != nil || !ok {
		t.Errorf("IsPending(key1) = %v, %v", ok, err)
	}
	if ok, err := s.IsPending(ctx, "a@example.com", ""); err != nil || !ok {
		t.Errorf("IsPending(\"\") = %v, %v", ok, err)
	}
	if ok, err := s.IsPending(ctx, "a@example.com", "other"); err != nil || ok {
		t.Errorf("IsPending(other) = %v, %v", ok, err)
	}

	if err := s.AddPending(ctx, "a@example.com", "key2"); !store.IsDuplicateEntry(err) {
		t.Errorf("expected ErrDuplicateEntry, got %v", err)
	}

	if err := s.RemovePending(ctx, "a@example.com"); err != nil {
		t.Fatalf("RemovePending() failed: %v", err)
	}
	if ok, _ := s.IsPending(ctx, "a@example.com", ""); ok {
		t.Error("expected no pending entry after removal")
	}
}

func TestSubscriberLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, addr := range []string{"a@example.com", "c@example.com", "b@example.com"} {
		if err := s.AddSubscriber(ctx, addr, "key-"+addr); err != nil {
			t.Fatalf("AddSubscriber(%s) failed: %v", addr, err)
		}
	}

	t.Run("membership and key narrowing", func(t *testing.T) {
		if ok, _ := s.IsSubscriber(ctx, "a@example.com", ""); !ok {
			t.Error("expected a@example.com to be a subscriber")
		}
		if ok, _ := s.IsSubscriber(ctx, "a@example.com", "key-a@example.com"); !ok {
			t.Error("expected the exact key to match")
		}
		if ok, _ := s.IsSubscriber(ctx, "a@example.com", "wrong"); ok {
			t.Error("a wrong key must not match")
		}
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		if err := s.AddSubscriber(ctx, "a@example.com", "other"); !store.IsDuplicateEntry(err) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
	})

	t.Run("every subscriber is broadcast-reachable", func(t *testing.T) {
		// The hash and the order list are written in one transaction;
		// a member of one must always be a member of the other.
		addrs, err := s.Subscribers(ctx)
		if err != nil {
			t.Fatalf("Subscribers() failed: %v", err)
		}
		seen := make(map[string]bool, len(addrs))
		for _, addr := range addrs {
			if seen[addr] {
				t.Errorf("order list holds %s twice", addr)
			}
			seen[addr] = true
			if ok, err := s.IsSubscriber(ctx, addr, ""); err != nil || !ok {
				t.Errorf("IsSubscriber(%s) = %v, %v", addr, ok, err)
			}
		}
		if len(addrs) != 3 {
			t.Errorf("expected 3 subscribers in the order list, got %d", len(addrs))
		}
	})

	t.Run("deletion key lookup", func(t *testing.T) {
		key, err := s.DeletionKey(ctx, "b@example.com")
		if err != nil || key != "key-b@example.com" {
			t.Errorf("DeletionKey() = %q, %v", key, err)
		}
		if _, err := s.DeletionKey(ctx, "nobody@example.com"); !store.IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("insertion order", func(t *testing.T) {
		got, err := s.Subscribers(ctx)
		if err != nil {
			t.Fatalf("Subscribers() failed: %v", err)
		}
		want := []string{"a@example.com", "c@example.com", "b@example.com"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Subscribers() = %v, want %v", got, want)
		}
	})

	t.Run("removal", func(t *testing.T) {
		if err := s.RemoveSubscriber(ctx, "c@example.com"); err != nil {
			t.Fatalf("RemoveSubscriber() failed: %v", err)
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
		s := newTestStore(t)
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

		subs, _ := s.Subscribers(ctx)
		if !reflect.DeepEqual(subs, []string{"a@example.com"}) {
			t.Errorf("Subscribers() = %v", subs)
		}
	})

	t.Run("wrong activation key", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.AddPending(ctx, "a@example.com", "activation"); err != nil {
			t.Fatal(err)
		}

		if err := s.Promote(ctx, "a@example.com", "bogus", "deletion"); !store.IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if ok, _ := s.IsPending(ctx, "a@example.com", "activation"); !ok {
			t.Error("expected the pending entry to survive")
		}
	})

	t.Run("no pending entry", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Promote(ctx, "a@example.com", "activation", "deletion"); !store.IsNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("already subscribed", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.AddPending(ctx, "a@example.com", "activation"); err != nil {
			t.Fatal(err)
		}
		if err := s.AddSubscriber(ctx, "a@example.com", "deletion"); err != nil {
			t.Fatal(err)
		}

		if err := s.Promote(ctx, "a@example.com", "activation", "other"); !store.IsDuplicateEntry(err) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
	})
}
