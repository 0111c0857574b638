package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]map[string]any // colección -> id -> datos
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[collection][id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "store: get %s/%s", collection, id)
	}
	return &Document{Collection: collection, ID: id, Data: clone(data)}, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(op{collection: collection, id: id, data: data, merge: merge})
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(op{collection: collection, id: id, delete: true})
	return nil
}

func (s *MemoryStore) apply(o op) {
	coll, ok := s.docs[o.collection]
	if o.delete {
		if ok {
			delete(coll, o.id)
			if len(coll) == 0 {
				delete(s.docs, o.collection)
			}
		}
		return
	}
	if !ok {
		coll = make(map[string]map[string]any)
		s.docs[o.collection] = coll
	}
	existing, ok := coll[o.id]
	if !o.merge || !ok {
		coll[o.id] = clone(o.data)
		return
	}
	merged := clone(existing)
	for k, v := range clone(o.data) {
		merged[k] = v
	}
	coll[o.id] = merged
}

func (s *MemoryStore) Where(ctx context.Context, collection, field string, value any) ([]Document, error) {
	want := stringify(value)
	return s.filter(ctx, collection, func(d map[string]any) bool {
		v, ok := d[field]
		return ok && stringify(v) == want
	})
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.filter(ctx, collection, nil)
}

func (s *MemoryStore) filter(ctx context.Context, collection string, f func(map[string]any) bool) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for id, data := range s.docs[collection] {
		if f == nil || f(data) {
			out = append(out, Document{Collection: collection, ID: id, Data: clone(data)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Collections(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for c, docs := range s.docs {
		if len(docs) > 0 && strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) NewBatch() Batch { return &memoryBatch{s: s} }

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

type memoryBatch struct {
	opList
	s *MemoryStore
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	for _, o := range b.ops {
		b.s.apply(o)
	}
	b.ops = nil
	return nil
}

func clone(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	_ = json.Unmarshal(b, &out)
	return out
}
