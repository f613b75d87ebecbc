package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

// Store keeps every document under its own key so WATCH covers exactly one
// document, plus a sorted set per collection ordered by first insertion.
type Store struct {
	client *redis.Client
	prefix string
	ids    *store.IDGenerator
}

func New(client *redis.Client, prefix string, ids *store.IDGenerator) *Store {
	if prefix == "" {
		prefix = "recon"
	}
	return &Store{client: client, prefix: prefix, ids: ids}
}

// Connect dials redis and verifies the connection
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 100,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (s *Store) docKey(collection, id string) string {
	return s.prefix + ":" + collection + ":doc:" + id
}

func (s *Store) indexKey(collection string) string {
	return s.prefix + ":" + collection + ":ids"
}

func (s *Store) ListAll(ctx context.Context, collection string) ([]store.Document, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(collection), 0, -1).Result()
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to list document ids")
		return nil, err
	}
	if len(ids) == 0 {
		return []store.Document{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to load documents")
		return nil, err
	}

	docs := make([]store.Document, 0, len(ids))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a document, left behind by a racing delete
			continue
		}
		docs = append(docs, store.Document{ID: ids[i], Data: []byte(str)})
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	data, err := s.client.Get(ctx, s.docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to get document")
		return nil, err
	}
	return &store.Document{ID: id, Data: data}, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, data []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueSet(ctx, pipe, collection, id, data)
		return nil
	})
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to put document")
	}
	return err
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.AtomicUpdate(ctx, collection, id, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrNotFound
		}
		return store.MergeFields(current, fields)
	})
	return err
}

func (s *Store) AtomicUpdate(ctx context.Context, collection, id string, fn store.UpdateFunc) ([]byte, error) {
	key := s.docKey(collection, id)

	for attempt := 0; attempt < store.MaxCASAttempts; attempt++ {
		var result []byte
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				current = nil
			} else if err != nil {
				return err
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			if next == nil {
				result = current
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.queueSet(ctx, pipe, collection, id, next)
				return nil
			})
			if err == nil {
				result = next
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"collection": collection,
		"id":         id,
	}).Warn("Compare-and-set attempts exhausted")
	return nil, store.ErrContention
}

func (s *Store) BatchWrite(ctx context.Context, writes map[string]any) error {
	grouped, err := store.GroupWrites(writes)
	if err != nil {
		return err
	}
	docKeys := make([]string, 0, len(grouped))
	for key := range grouped {
		docKeys = append(docKeys, key)
	}
	sort.Strings(docKeys)

	watched := make([]string, len(docKeys))
	for i, key := range docKeys {
		p := grouped[key].Path
		watched[i] = s.docKey(p.Collection, p.ID)
	}

	for attempt := 0; attempt < store.MaxCASAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			results := make([][]byte, len(docKeys))
			for i, key := range docKeys {
				current, err := tx.Get(ctx, watched[i]).Bytes()
				if errors.Is(err, redis.Nil) {
					current = nil
				} else if err != nil {
					return err
				}
				next, err := grouped[key].Apply(current)
				if err != nil {
					return err
				}
				results[i] = next
			}

			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for i, key := range docKeys {
					p := grouped[key].Path
					if results[i] == nil {
						pipe.Del(ctx, watched[i])
						pipe.ZRem(ctx, s.indexKey(p.Collection), p.ID)
						continue
					}
					s.queueSet(ctx, pipe, p.Collection, p.ID, results[i])
				}
				return nil
			})
			return err
		}, watched...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			logger.GetLogger().WithError(err).WithField("writes", len(writes)).Error("Failed to apply batch write")
		}
		return err
	}
	return store.ErrContention
}

func (s *Store) NewID() string {
	return s.ids.NewID()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) queueSet(ctx context.Context, pipe redis.Pipeliner, collection, id string, data []byte) {
	pipe.Set(ctx, s.docKey(collection, id), data, 0)
	pipe.ZAddNX(ctx, s.indexKey(collection), redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: id,
	})
}
