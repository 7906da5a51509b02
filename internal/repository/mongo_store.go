package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dias221467/sitetrack-functions/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on top of a MongoDB database.
type MongoStore struct {
	db           *mongo.Database
	transactions bool
}

// NewMongoStore creates a store over db. With transactions enabled every
// batch commit runs inside a session transaction, which needs a replica set.
func NewMongoStore(db *mongo.Database, transactions bool) *MongoStore {
	return &MongoStore{db: db, transactions: transactions}
}

// Database exposes the underlying handle for change stream watchers.
func (s *MongoStore) Database() *mongo.Database {
	return s.db
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var fields bson.M
	err := s.db.Collection(collection).FindOne(ctx, idFilter(id)).Decode(&fields)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"collection": collection,
			"id":         id,
		}).Error("Failed to fetch document")
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", collection, id, err)
	}
	return toDocument(fields), nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, filter Filter, opts QueryOptions) ([]Document, error) {
	query := queryFilter(filter, opts.StartAfter)
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOptions.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, query, findOptions)
	if err != nil {
		logger.Log.WithError(err).WithField("collection", collection).Error("Failed to query documents")
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		var fields bson.M
		if err := cursor.Decode(&fields); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", collection, err)
		}
		docs = append(docs, *toDocument(fields))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", collection, err)
	}
	return docs, nil
}

func (s *MongoStore) NewBatch() Batch {
	return &mongoBatch{store: s}
}

// ServerTimestamp reads localTime from the server's hello reply.
func (s *MongoStore) ServerTimestamp(ctx context.Context) (time.Time, error) {
	var reply struct {
		LocalTime time.Time `bson:"localTime"`
	}
	err := s.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read server time: %w", err)
	}
	return reply.LocalTime.UTC(), nil
}

type mongoBatch struct {
	pendingOps
	store *MongoStore
}

func (b *mongoBatch) Commit(ctx context.Context) error {
	if len(b.ops) > MaxBatchWrites {
		return fmt.Errorf("%w: %d mutations", ErrBatchTooLarge, len(b.ops))
	}
	if len(b.ops) == 0 {
		return nil
	}

	if !b.store.transactions {
		return b.write(ctx)
	}

	session, err := b.store.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, b.write(sc)
	})
	if err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// write issues one ordered bulk write per collection, in first-seen order.
func (b *mongoBatch) write(ctx context.Context) error {
	order, models := writeModels(b.ops)
	for _, collection := range order {
		_, err := b.store.db.Collection(collection).BulkWrite(ctx, models[collection], options.BulkWrite().SetOrdered(true))
		if err != nil {
			logger.Log.WithError(err).WithField("collection", collection).Error("Bulk write failed")
			return fmt.Errorf("failed to write %s batch: %w", collection, err)
		}
	}
	return nil
}

// writeModels groups ops into per-collection write models and returns the
// collections in the order they first appear.
func writeModels(ops []batchOp) ([]string, map[string][]mongo.WriteModel) {
	var order []string
	models := make(map[string][]mongo.WriteModel)
	for _, op := range ops {
		if _, ok := models[op.collection]; !ok {
			order = append(order, op.collection)
		}
		switch op.kind {
		case opUpdate:
			models[op.collection] = append(models[op.collection], mongo.NewUpdateOneModel().
				SetFilter(idFilter(op.id)).
				SetUpdate(bson.M{"$set": op.fields}))
		case opDelete:
			models[op.collection] = append(models[op.collection], mongo.NewDeleteOneModel().
				SetFilter(idFilter(op.id)))
		}
	}
	return order, models
}

// queryFilter builds the Find filter for an equality predicate, continuing
// after the given document when paging.
func queryFilter(filter Filter, after *Document) bson.M {
	query := bson.M{filter.Field: filter.Value}
	if after == nil {
		return query
	}

	key := after.Key
	if key == nil {
		key = after.ID
	}
	switch k := key.(type) {
	case string:
		// $gt only compares within a BSON type, and ObjectIDs sort after
		// every string.
		query["$or"] = bson.A{
			bson.M{"_id": bson.M{"$gt": k}},
			bson.M{"_id": bson.M{"$type": "objectId"}},
		}
	default:
		query["_id"] = bson.M{"$gt": k}
	}
	return query
}

// idFilter matches string ids and, for hex strings, ObjectIDs created by
// other writers.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

func toDocument(fields bson.M) *Document {
	doc := &Document{Fields: make(map[string]interface{}, len(fields))}
	for k, v := range fields {
		if k == "_id" {
			doc.ID = IDString(v)
			doc.Key = v
			continue
		}
		doc.Fields[k] = v
	}
	return doc
}

// IDString renders a document _id as a string.
func IDString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	default:
		return fmt.Sprint(id)
	}
}
