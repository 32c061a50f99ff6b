// internal/signaling/redisstore/redis.go
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jason-s-yu/gamehub/internal/models"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic-transaction retries when concurrent peers
// write the same document.
const maxTxRetries = 16

// deletedMarker is published on a document's change channel when it is removed.
const deletedMarker = "deleted"

// syncPrefix starts the marker a subscriber publishes together with its
// initial read. Changes published before its own marker are older than that
// read.
const syncPrefix = "sync:"

// Store keeps each session document as a JSON string under "game:<id>" and
// announces every write on the "game:<id>:changes" pub/sub channel.
type Store struct {
	rdb *redis.Client
	ttl time.Duration

	// beforeRead runs between SUBSCRIBE and the initial read. Tests only.
	beforeRead func()
}

// Options configure a Redis connection.
type Options struct {
	Addr string
	DB   int
	// TTL expires abandoned documents; 0 keeps them until deleted.
	TTL time.Duration
}

// Connect dials Redis and verifies the connection with a PING.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return New(rdb, opts.TTL), nil
}

// New wraps an existing client.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func docKey(id string) string     { return "game:" + id }
func changesKey(id string) string { return "game:" + id + ":changes" }

func (s *Store) Create(ctx context.Context, id string, doc *models.SessionDoc) error {
	raw, err := signaling.EncodeDoc(doc)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, docKey(id), raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to SETNX %s: %w", docKey(id), err)
	}
	if !ok {
		return signaling.ErrExists
	}
	return s.rdb.Publish(ctx, changesKey(id), raw).Err()
}

func (s *Store) Get(ctx context.Context, id string) (*models.SessionDoc, error) {
	raw, err := s.rdb.Get(ctx, docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, signaling.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to GET %s: %w", docKey(id), err)
	}
	return signaling.DecodeDoc(raw)
}

// Apply runs the patch inside a WATCH/MULTI transaction, retrying when
// another writer touched the document in between.
func (s *Store) Apply(ctx context.Context, id string, ops ...signaling.Op) error {
	key := docKey(id)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return signaling.ErrNotFound
		}
		if err != nil {
			return err
		}
		next, err := signaling.ApplyOps(raw, ops)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, s.ttl)
			pipe.Publish(ctx, changesKey(id), next)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redisstore: %s: too much contention", id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, docKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to DEL %s: %w", docKey(id), err)
	}
	if n == 0 {
		return signaling.ErrNotFound
	}
	return s.rdb.Publish(ctx, changesKey(id), deletedMarker).Err()
}

// Subscribe listens on the change channel and re-reads nothing: every
// message already carries the full document. The initial GET and a sync
// marker go out in one MULTI, so anything received before the marker is
// dropped instead of replayed over the newer read.
func (s *Store) Subscribe(ctx context.Context, id string) (<-chan signaling.Snapshot, error) {
	pubsub := s.rdb.Subscribe(ctx, changesKey(id))
	// wait for the subscription to be confirmed so no write is missed
	// between the initial read and the first message
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to SUBSCRIBE %s: %w", changesKey(id), err)
	}
	if s.beforeRead != nil {
		s.beforeRead()
	}

	marker := syncPrefix + uuid.NewString()
	var get *redis.StringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, docKey(id))
		pipe.Publish(ctx, changesKey(id), marker)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		pubsub.Close()
		return nil, fmt.Errorf("failed to GET %s: %w", docKey(id), err)
	}

	feed := signaling.NewFeed(ctx, func(*signaling.Feed) { pubsub.Close() })

	raw, err := get.Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		feed.Push(signaling.Snapshot{Deleted: true})
	case err != nil:
		pubsub.Close()
		return nil, fmt.Errorf("failed to GET %s: %w", docKey(id), err)
	default:
		doc, err := signaling.DecodeDoc(raw)
		if err != nil {
			pubsub.Close()
			return nil, err
		}
		feed.Push(signaling.Snapshot{Doc: doc})
	}

	go func() {
		synced := false
		for msg := range pubsub.Channel() {
			if strings.HasPrefix(msg.Payload, syncPrefix) {
				if msg.Payload == marker {
					synced = true
				}
				continue
			}
			if !synced {
				continue
			}
			if msg.Payload == deletedMarker {
				feed.Push(signaling.Snapshot{Deleted: true})
				continue
			}
			doc, err := signaling.DecodeDoc([]byte(msg.Payload))
			if err != nil {
				continue
			}
			feed.Push(signaling.Snapshot{Doc: doc})
		}
	}()
	return feed.C(), nil
}
