// Package redis provides a Redis implementation of store.Store.
//
// Layout (all keys share the configured prefix):
//
//	pending:<addr>      string  activation key, one per address
//	subscribers         hash    address -> deletion key
//	subscribers:order   list    addresses in subscription order
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/qll/ezlist/store"
	"github.com/redis/go-redis/v9"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using Redis.
type Store struct {
	client    redis.UniversalClient
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new Redis store with the provided client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

func (s *Store) pendingKey(addr string) string {
	return s.opts.keyPrefix + "pending:" + addr
}

func (s *Store) subscribersKey() string {
	return s.opts.keyPrefix + "subscribers"
}

func (s *Store) orderKey() string {
	return s.opts.keyPrefix + "subscribers:order"
}

// Connect verifies the connection.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.client == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("redis: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("redis ping: %w", err)
	}

	s.logger.Info("connected to Redis", "key_prefix", s.opts.keyPrefix)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the Redis client.
func (s *Store) Close(ctx context.Context) error {
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
func (s *Store) IsPending(ctx context.Context, addr, activationKey string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if addr == "" {
		return false, store.ErrInvalidAddress
	}

	key, err := s.client.Get(ctx, s.pendingKey(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get pending: %w", err)
	}
	return activationKey == "" || key == activationKey, nil
}

// AddPending records a pending request for addr.
func (s *Store) AddPending(ctx context.Context, addr, activationKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	ok, err := s.client.SetNX(ctx, s.pendingKey(addr), activationKey, 0).Result()
	if err != nil {
		return fmt.Errorf("set pending: %w", err)
	}
	if !ok {
		return store.ErrDuplicateEntry
	}
	return nil
}

// RemovePending deletes the pending request for addr, if any.
func (s *Store) RemovePending(ctx context.Context, addr string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	if err := s.client.Del(ctx, s.pendingKey(addr)).Err(); err != nil {
		return fmt.Errorf("del pending: %w", err)
	}
	return nil
}

// IsSubscriber reports whether addr is a subscriber. A non-empty
// deletionKey narrows the match.
func (s *Store) IsSubscriber(ctx context.Context, addr, deletionKey string) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if addr == "" {
		return false, store.ErrInvalidAddress
	}

	key, err := s.client.HGet(ctx, s.subscribersKey(), addr).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hget subscriber: %w", err)
	}
	return deletionKey == "" || key == deletionKey, nil
}

// AddSubscriber records addr as a subscriber.
func (s *Store) AddSubscriber(ctx context.Context, addr, deletionKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	// Hash entry and order list must stay in step, so both writes go
	// through one transaction guarded by WATCH on the hash.
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		subscribed, err := tx.HExists(ctx, s.subscribersKey(), addr).Result()
		if err != nil {
			return fmt.Errorf("hexists subscriber: %w", err)
		}
		if subscribed {
			return store.ErrDuplicateEntry
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.subscribersKey(), addr, deletionKey)
			pipe.RPush(ctx, s.orderKey(), addr)
			return nil
		})
		return err
	}, s.subscribersKey())
}

// Promote atomically converts a pending request into a subscription.
// Uses WATCH on the pending key so a concurrent mutation aborts the
// transaction.
func (s *Store) Promote(ctx context.Context, addr, activationKey, deletionKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	pendingKey := s.pendingKey(addr)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		key, err := tx.Get(ctx, pendingKey).Result()
		if errors.Is(err, redis.Nil) || (err == nil && key != activationKey) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get pending: %w", err)
		}

		subscribed, err := tx.HExists(ctx, s.subscribersKey(), addr).Result()
		if err != nil {
			return fmt.Errorf("hexists subscriber: %w", err)
		}
		if subscribed {
			return store.ErrDuplicateEntry
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.subscribersKey(), addr, deletionKey)
			pipe.RPush(ctx, s.orderKey(), addr)
			pipe.Del(ctx, pendingKey)
			return nil
		})
		return err
	}, pendingKey)
}

// DeletionKey returns the deletion key stored for addr.
func (s *Store) DeletionKey(ctx context.Context, addr string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}
	if addr == "" {
		return "", store.ErrInvalidAddress
	}

	key, err := s.client.HGet(ctx, s.subscribersKey(), addr).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hget subscriber: %w", err)
	}
	return key, nil
}

// RemoveSubscriber deletes the subscriber record for addr.
func (s *Store) RemoveSubscriber(ctx context.Context, addr string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	removed, err := s.client.HDel(ctx, s.subscribersKey(), addr).Result()
	if err != nil {
		return fmt.Errorf("hdel subscriber: %w", err)
	}
	if removed == 0 {
		return store.ErrNotFound
	}
	if err := s.client.LRem(ctx, s.orderKey(), 1, addr).Err(); err != nil {
		return fmt.Errorf("lrem order: %w", err)
	}
	return nil
}

// Subscribers returns all subscriber addresses in insertion order.
func (s *Store) Subscribers(ctx context.Context) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	addrs, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange order: %w", err)
	}
	return addrs, nil
}
