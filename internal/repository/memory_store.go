package repository

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore is an in-process Store. It backs local runs without a database
// and the tests of every package that talks to the document store.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]interface{}
	commits     map[string]int
	failures    map[string]error
	clock       func() time.Time
	lastStamp   time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]interface{}),
		commits:     make(map[string]int),
		failures:    make(map[string]error),
		clock:       time.Now,
	}
}

// SetClock replaces the time source used by ServerTimestamp.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	s.lastStamp = time.Time{}
}

// Put stores fields under collection/id, replacing any existing document.
func (s *MemoryStore) Put(collection, id string, fields map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(collection, id, fields)
}

// Insert stores fields under a generated id and returns it.
func (s *MemoryStore) Insert(collection string, fields map[string]interface{}) string {
	id := uuid.NewString()
	s.Put(collection, id, fields)
	return id
}

// Seed stores a model value, converting it through its bson tags.
func (s *MemoryStore) Seed(collection, id string, v interface{}) error {
	raw, err := bson.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	fields := bson.M{}
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	delete(fields, "_id")
	s.Put(collection, id, fields)
	return nil
}

func (s *MemoryStore) put(collection, id string, fields map[string]interface{}) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]interface{})
		s.collections[collection] = docs
	}
	docs[id] = copyFields(fields)
}

// FailCollection makes every query and commit touching collection return err.
// A nil err clears the failure.
func (s *MemoryStore) FailCollection(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, collection)
		return
	}
	s.failures[collection] = err
}

// BatchCommits returns the number of successful commits that touched collection.
func (s *MemoryStore) BatchCommits(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits[collection]
}

// TotalCommits returns the number of successful commits across all collections.
func (s *MemoryStore) TotalCommits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits[""]
}

// Count returns the number of documents in collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[collection]; err != nil {
		return nil, err
	}
	fields, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Fields: copyFields(fields)}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filter Filter, opts QueryOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[collection]; err != nil {
		return nil, err
	}

	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id, fields := range docs {
		if opts.StartAfter != nil && id <= opts.StartAfter.ID {
			continue
		}
		if !reflect.DeepEqual(fields[filter.Field], filter.Value) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	result := make([]Document, 0, len(ids))
	for _, id := range ids {
		result = append(result, Document{ID: id, Fields: copyFields(docs[id])})
	}
	return result, nil
}

func (s *MemoryStore) NewBatch() Batch {
	return &memoryBatch{store: s}
}

// ServerTimestamp returns the clock time, strictly increasing across calls.
func (s *MemoryStore) ServerTimestamp(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC().Truncate(time.Millisecond)
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Millisecond)
	}
	s.lastStamp = now
	return now, nil
}

type memoryBatch struct {
	pendingOps
	store *MemoryStore
}

// Commit applies every mutation or none of them.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.ops) > MaxBatchWrites {
		return fmt.Errorf("%w: %d mutations", ErrBatchTooLarge, len(b.ops))
	}

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for _, op := range b.ops {
		if err := s.failures[op.collection]; err != nil {
			return err
		}
		touched[op.collection] = true
	}

	// Updates of documents removed since they were read match nothing.
	for _, op := range b.ops {
		switch op.kind {
		case opUpdate:
			doc, ok := s.collections[op.collection][op.id]
			if !ok {
				continue
			}
			for k, v := range op.fields {
				doc[k] = v
			}
		case opDelete:
			delete(s.collections[op.collection], op.id)
		}
	}

	for collection := range touched {
		s.commits[collection]++
	}
	s.commits[""]++
	return nil
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
