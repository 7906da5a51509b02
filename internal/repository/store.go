package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// MaxBatchWrites is the largest number of mutations a single batch commit accepts.
const MaxBatchWrites = 500

var (
	// ErrNotFound is returned by Get when no document has the given id.
	ErrNotFound = errors.New("document not found")
	// ErrBatchTooLarge is returned by Commit when a batch holds more than MaxBatchWrites mutations.
	ErrBatchTooLarge = errors.New("batch exceeds write limit")
)

// Document is a schemaless document read from a collection. Key holds the
// _id as the backend stored it and is nil when the backend only knows
// string ids.
type Document struct {
	ID     string
	Key    interface{}
	Fields map[string]interface{}
}

// Decode copies the document fields into v using its bson tags.
func (d Document) Decode(v interface{}) error {
	fields := bson.M{}
	for k, val := range d.Fields {
		fields[k] = val
	}
	fields["_id"] = d.ID

	raw, err := bson.Marshal(fields)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

// Filter is an equality predicate on a single field.
type Filter struct {
	Field string
	Value interface{}
}

// QueryOptions bound a query. Results are always ordered by document id.
// StartAfter is the last document of the previous page.
type QueryOptions struct {
	Limit      int
	StartAfter *Document
}

// Store is the document store the backend functions depend on.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, filter Filter, opts QueryOptions) ([]Document, error)
	NewBatch() Batch
	ServerTimestamp(ctx context.Context) (time.Time, error)
}

// Batch collects mutations that are committed atomically.
type Batch interface {
	Update(collection, id string, fields map[string]interface{})
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

type opKind int

const (
	opUpdate opKind = iota
	opDelete
)

type batchOp struct {
	kind       opKind
	collection string
	id         string
	fields     map[string]interface{}
}

// pendingOps is the mutation list shared by both batch implementations.
type pendingOps struct {
	ops []batchOp
}

func (p *pendingOps) Update(collection, id string, fields map[string]interface{}) {
	p.ops = append(p.ops, batchOp{kind: opUpdate, collection: collection, id: id, fields: fields})
}

func (p *pendingOps) Delete(collection, id string) {
	p.ops = append(p.ops, batchOp{kind: opDelete, collection: collection, id: id})
}

func (p *pendingOps) Len() int {
	return len(p.ops)
}
