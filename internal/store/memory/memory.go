package memory

import (
	"context"
	"sort"
	"sync"

	"recon-dashboard/internal/store"
)

// Store keeps collections in process memory. A single mutex serializes
// writes, which makes every AtomicUpdate trivially linearizable.
type Store struct {
	mu    sync.RWMutex
	data  map[string]map[string][]byte
	ids   *store.IDGenerator
	order map[string][]string
}

func New(ids *store.IDGenerator) *Store {
	return &Store{
		data:  make(map[string]map[string][]byte),
		order: make(map[string][]string),
		ids:   ids,
	}
}

func (s *Store) ListAll(ctx context.Context, collection string) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.data[collection]
	docs := make([]store.Document, 0, len(coll))
	for _, id := range s.order[collection] {
		if data, ok := coll[id]; ok {
			docs = append(docs, store.Document{ID: id, Data: clone(data)})
		}
	}
	return docs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[collection][id]
	if !ok {
		return nil, nil
	}
	return &store.Document{ID: id, Data: clone(data)}, nil
}

func (s *Store) Put(ctx context.Context, collection, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set(collection, id, data)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	next, err := store.MergeFields(current, fields)
	if err != nil {
		return err
	}
	s.set(collection, id, next)
	return nil
}

func (s *Store) AtomicUpdate(ctx context.Context, collection, id string, fn store.UpdateFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[collection][id]
	var in []byte
	if ok {
		in = clone(current)
	}
	next, err := fn(in)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return in, nil
	}
	s.set(collection, id, next)
	return clone(next), nil
}

func (s *Store) BatchWrite(ctx context.Context, writes map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	grouped, err := store.GroupWrites(writes)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// compute everything first so a bad value leaves the store untouched
	results := make(map[string][]byte, len(grouped))
	keys := make([]string, 0, len(grouped))
	for key, dw := range grouped {
		next, err := dw.Apply(s.data[dw.Path.Collection][dw.Path.ID])
		if err != nil {
			return err
		}
		results[key] = next
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		p := grouped[key].Path
		if results[key] == nil {
			s.delete(p.Collection, p.ID)
			continue
		}
		s.set(p.Collection, p.ID, results[key])
	}
	return nil
}

func (s *Store) NewID() string {
	return s.ids.NewID()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) set(collection, id string, data []byte) {
	coll, ok := s.data[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.data[collection] = coll
	}
	if _, exists := coll[id]; !exists {
		s.order[collection] = append(s.order[collection], id)
	}
	coll[id] = clone(data)
}

func (s *Store) delete(collection, id string) {
	if _, ok := s.data[collection][id]; !ok {
		return
	}
	delete(s.data[collection], id)
	order := s.order[collection]
	for i, v := range order {
		if v == id {
			s.order[collection] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
