package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

// listAll decodes every document of a collection. A document that no longer
// decodes fails the whole read rather than vanishing from the results.
func listAll[T any](ctx context.Context, s store.Store, collection string) ([]T, error) {
	docs, err := s.ListAll(ctx, collection)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to list documents")
		return nil, err
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			logger.GetLogger().WithError(err).WithFields(map[string]interface{}{
				"collection": collection,
				"id":         doc.ID,
			}).Error("Failed to decode document")
			return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, doc.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func getByID[T any](ctx context.Context, s store.Store, collection, id string) (*T, error) {
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to get document")
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		logger.GetLogger().WithError(err).WithField("id", id).Error("Failed to decode document")
		return nil, err
	}
	return &v, nil
}

func put(ctx context.Context, s store.Store, collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, collection, id, data); err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to put document")
		return err
	}
	return nil
}

func update(ctx context.Context, s store.Store, collection, id string, fields map[string]any) error {
	err := s.Update(ctx, collection, id, fields)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		logger.GetLogger().WithError(err).WithField("collection", collection).Error("Failed to update document")
	}
	return err
}

// batchPut writes many documents in chunks of batchSize
func batchPut[T any](ctx context.Context, s store.Store, collection string, items []T, id func(T) string, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		writes := make(map[string]any, end-start)
		for _, item := range items[start:end] {
			writes[store.DocPath(collection, id(item))] = item
		}
		if err := s.BatchWrite(ctx, writes); err != nil {
			logger.GetLogger().WithError(err).WithFields(map[string]interface{}{
				"collection": collection,
				"batch_size": end - start,
			}).Error("Failed to write batch")
			return err
		}
	}
	return nil
}
