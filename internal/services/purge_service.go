package services

import (
	"context"
	"fmt"

	"github.com/Dias221467/sitetrack-functions/internal/models"
	"github.com/Dias221467/sitetrack-functions/internal/repository"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the page size used when a caller passes none.
const DefaultBatchSize = 500

// PurgeService permanently removes documents. It is not wired to any
// trigger; maintenance jobs and the purge endpoint call it.
type PurgeService struct {
	store repository.Store
	log   logrus.FieldLogger
}

func NewPurgeService(store repository.Store, log logrus.FieldLogger) *PurgeService {
	return &PurgeService{store: store, log: log}
}

// DeleteQueryBatch deletes every document of collection matching filter, one
// page of batchSize documents per batch, until a page comes back short. It
// returns the number of deleted documents.
//
// Every page re-issues the same query, so documents inserted concurrently
// may be picked up by a later page. Exactly-once deletion is not guaranteed.
func (s *PurgeService) DeleteQueryBatch(ctx context.Context, collection string, filter repository.Filter, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > repository.MaxBatchWrites {
		batchSize = repository.MaxBatchWrites
	}

	total := 0
	for {
		docs, err := s.store.Query(ctx, collection, filter, repository.QueryOptions{Limit: batchSize})
		if err != nil {
			return total, fmt.Errorf("failed to query %s: %w", collection, err)
		}
		if len(docs) == 0 {
			break
		}

		batch := s.store.NewBatch()
		for _, doc := range docs {
			batch.Delete(collection, doc.ID)
		}
		if err := batch.Commit(ctx); err != nil {
			return total, fmt.Errorf("failed to delete %s batch: %w", collection, err)
		}
		total += len(docs)

		if len(docs) < batchSize {
			break
		}
	}

	s.log.WithFields(logrus.Fields{
		"collection": collection,
		"field":      filter.Field,
		"count":      total,
	}).Info("Deleted documents by query")
	return total, nil
}

// PurgeSoftDeleted hard-deletes documents flagged deleted in each collection.
func (s *PurgeService) PurgeSoftDeleted(ctx context.Context, collections []string) (int, error) {
	total := 0
	for _, collection := range collections {
		n, err := s.DeleteQueryBatch(ctx, collection, repository.Filter{Field: models.FieldDeleted, Value: true}, DefaultBatchSize)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
