// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/qll/ezlist/store"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
type Store struct {
	mu          sync.Mutex
	pending     map[string]string // address -> activation key
	subscribers map[string]string // address -> deletion key
	order       []string          // subscriber addresses in insertion order
	connected   int32
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		pending:     make(map[string]string),
		subscribers: make(map[string]string),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// IsPending reports whether addr has a pending request. A non-empty
// activationKey narrows the match.
func (s *Store) IsPending(_ context.Context, addr, activationKey string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if addr == "" {
		return false, store.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.pending[addr]
	return ok && (activationKey == "" || key == activationKey), nil
}

// AddPending records a pending request for addr.
func (s *Store) AddPending(_ context.Context, addr, activationKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[addr]; ok {
		return store.ErrDuplicateEntry
	}
	s.pending[addr] = activationKey
	return nil
}

// RemovePending deletes the pending request for addr, if any.
func (s *Store) RemovePending(_ context.Context, addr string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, addr)
	return nil
}

// IsSubscriber reports whether addr is a subscriber. A non-empty
// deletionKey narrows the match.
func (s *Store) IsSubscriber(_ context.Context, addr, deletionKey string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if addr == "" {
		return false, store.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.subscribers[addr]
	if !ok {
		return false, nil
	}
	return deletionKey == "" || key == deletionKey, nil
}

// AddSubscriber records addr as a subscriber.
func (s *Store) AddSubscriber(_ context.Context, addr, deletionKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addSubscriberLocked(addr, deletionKey)
}

func (s *Store) addSubscriberLocked(addr, deletionKey string) error {
	if _, ok := s.subscribers[addr]; ok {
		return store.ErrDuplicateEntry
	}
	s.subscribers[addr] = deletionKey
	s.order = append(s.order, addr)
	return nil
}

// Promote atomically converts a pending request into a subscription.
func (s *Store) Promote(_ context.Context, addr, activationKey, deletionKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.pending[addr]
	if !ok || key != activationKey {
		return store.ErrNotFound
	}
	if err := s.addSubscriberLocked(addr, deletionKey); err != nil {
		return err
	}
	delete(s.pending, addr)
	return nil
}

// DeletionKey returns the deletion key stored for addr.
func (s *Store) DeletionKey(_ context.Context, addr string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}
	if addr == "" {
		return "", store.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.subscribers[addr]
	if !ok {
		return "", store.ErrNotFound
	}
	return key, nil
}

// RemoveSubscriber deletes the subscriber record for addr.
func (s *Store) RemoveSubscriber(_ context.Context, addr string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[addr]; !ok {
		return store.ErrNotFound
	}
	delete(s.subscribers, addr)
	for i, a := range s.order {
		if a == addr {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Subscribers returns all subscriber addresses in insertion order.
func (s *Store) Subscribers(_ context.Context) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}
