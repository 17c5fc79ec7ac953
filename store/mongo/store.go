// Package mongo provides a MongoDB implementation of store.Store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/qll/ezlist/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Compile-time check
var _ store.Store = (*Store)(nil)

// subscriberDoc is the subscriber record layout.
type subscriberDoc struct {
	Address     string    `bson:"address"`
	DeletionKey string    `bson:"deletion_key"`
	CreatedAt   time.Time `bson:"created_at"`
}

// pendingDoc is the pending request record layout.
type pendingDoc struct {
	Address       string    `bson:"address"`
	ActivationKey string    `bson:"activation_key"`
	CreatedAt     time.Time `bson:"created_at"`
}

// Store implements store.Store using MongoDB.
type Store struct {
	client      *mongo.Client
	subscribers *mongo.Collection
	pending     *mongo.Collection
	opts        *options
	connected   int32
	logger      *slog.Logger
}

// New creates a new MongoDB store with the provided client.
// Call Connect() to initialize the collections and indexes.
func New(client *mongo.Client, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

// Connect initializes the database, collections, and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.client == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("mongo ping: %w", err)
	}

	db := s.client.Database(s.opts.database)
	s.subscribers = db.Collection(s.opts.subscribersCollection)
	s.pending = db.Collection(s.opts.pendingCollection)

	if err := s.ensureIndexes(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure indexes: %w", err)
	}

	s.logger.Info("connected to MongoDB",
		"database", s.opts.database,
		"subscribers", s.opts.subscribersCollection,
		"pending", s.opts.pendingCollection,
	)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the MongoDB client.
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

// ensureIndexes creates unique address indexes on both collections.
func (s *Store) ensureIndexes(ctx context.Context) error {
	model := mongo.IndexModel{
		Keys:    bson.D{bson.E{Key: "address", Value: 1}},
		Options: mongoopts.Index().SetUnique(true),
	}
	if _, err := s.subscribers.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("subscribers index: %w", err)
	}
	if _, err := s.pending.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("pending index: %w", err)
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

	filter := bson.D{bson.E{Key: "address", Value: addr}}
	if activationKey != "" {
		filter = append(filter, bson.E{Key: "activation_key", Value: activationKey})
	}
	err := s.pending.FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find pending: %w", err)
	}
	return true, nil
}

// AddPending records a pending request for addr.
func (s *Store) AddPending(ctx context.Context, addr, activationKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	doc := pendingDoc{Address: addr, ActivationKey: activationKey, CreatedAt: time.Now().UTC()}
	if _, err := s.pending.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateEntry
		}
		return fmt.Errorf("insert pending: %w", err)
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

	if _, err := s.pending.DeleteMany(ctx, bson.D{bson.E{Key: "address", Value: addr}}); err != nil {
		return fmt.Errorf("delete pending: %w", err)
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

	filter := bson.D{bson.E{Key: "address", Value: addr}}
	if deletionKey != "" {
		filter = append(filter, bson.E{Key: "deletion_key", Value: deletionKey})
	}
	err := s.subscribers.FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find subscriber: %w", err)
	}
	return true, nil
}

// AddSubscriber records addr as a subscriber.
func (s *Store) AddSubscriber(ctx context.Context, addr, deletionKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}
	return s.insertSubscriber(ctx, addr, deletionKey)
}

func (s *Store) insertSubscriber(ctx context.Context, addr, deletionKey string) error {
	doc := subscriberDoc{Address: addr, DeletionKey: deletionKey, CreatedAt: time.Now().UTC()}
	if _, err := s.subscribers.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicateEntry
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}
	return nil
}

// Promote atomically converts a pending request into a subscription.
// Runs in a multi-document transaction unless WithoutTransactions was set.
func (s *Store) Promote(ctx context.Context, addr, activationKey, deletionKey string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	promote := func(ctx context.Context) error {
		ok, err := s.IsPending(ctx, addr, activationKey)
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		if err := s.insertSubscriber(ctx, addr, deletionKey); err != nil {
			return err
		}
		return s.RemovePending(ctx, addr)
	}

	if s.opts.disableTransactions {
		return promote(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, promote(ctx)
	})
	return err
}

// DeletionKey returns the deletion key stored for addr.
func (s *Store) DeletionKey(ctx context.Context, addr string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}
	if addr == "" {
		return "", store.ErrInvalidAddress
	}

	var doc subscriberDoc
	err := s.subscribers.FindOne(ctx, bson.D{bson.E{Key: "address", Value: addr}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find subscriber: %w", err)
	}
	return doc.DeletionKey, nil
}

// RemoveSubscriber deletes the subscriber record for addr.
func (s *Store) RemoveSubscriber(ctx context.Context, addr string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if addr == "" {
		return store.ErrInvalidAddress
	}

	res, err := s.subscribers.DeleteOne(ctx, bson.D{bson.E{Key: "address", Value: addr}})
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Subscribers returns all subscriber addresses in insertion order.
// ObjectIDs are monotonic for a single writer, which is all the list
// manager ever is.
func (s *Store) Subscribers(ctx context.Context) ([]string, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	opts := mongoopts.Find().SetSort(bson.D{bson.E{Key: "_id", Value: 1}})
	cur, err := s.subscribers.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find subscribers: %w", err)
	}
	defer cur.Close(ctx)

	var addrs []string
	for cur.Next(ctx) {
		var doc subscriberDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode subscriber: %w", err)
		}
		addrs = append(addrs, doc.Address)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return addrs, nil
}
