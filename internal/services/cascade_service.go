package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/sitetrack-functions/internal/models"
	"github.com/Dias221467/sitetrack-functions/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ProjectDeletedEvent is delivered once per removed project document, with
// the document's fields as they were before removal.
type ProjectDeletedEvent struct {
	EventID   string
	ProjectID string
	Time      time.Time
	Prior     models.Project
}

// CascadeResult reports what a cascade touched.
type CascadeResult struct {
	ProjectID      string         `json:"projectId"`
	DeletedAt      time.Time      `json:"deletedAt"`
	DeletedBy      string         `json:"deletedBy"`
	Notifications  int            `json:"notifications"`
	Assignments    int            `json:"assignments"`
	WorkerAccounts int            `json:"workerAccounts"`
	Counts         map[string]int `json:"counts"`
	Total          int            `json:"total"`
}

// CascadeService propagates a project deletion to every document that
// references the project.
type CascadeService struct {
	store repository.Store
	log   logrus.FieldLogger
	paged bool
}

// NewCascadeService creates a CascadeService. When paged is false each
// collection is updated with a single batch, so matches beyond
// repository.MaxBatchWrites are left untouched and reported in the log.
func NewCascadeService(store repository.Store, log logrus.FieldLogger, paged bool) *CascadeService {
	return &CascadeService{store: store, log: log, paged: paged}
}

// HandleProjectDeleted soft-deletes dependent records, notifications and
// assignments of the deleted project and detaches its worker accounts.
// Store errors abort the cascade and are returned so the caller can retry
// the whole event. Every update is a plain field set, so a retry converges.
func (s *CascadeService) HandleProjectDeleted(ctx context.Context, ev ProjectDeletedEvent) (*CascadeResult, error) {
	if ev.ProjectID == "" {
		return nil, fmt.Errorf("project deletion event has no project id")
	}

	deletedAt := ev.Time.UTC().Truncate(time.Millisecond)
	if ev.Time.IsZero() {
		ts, err := s.store.ServerTimestamp(ctx)
		if err != nil {
			return nil, err
		}
		deletedAt = ts
	}

	log := s.log.WithFields(logrus.Fields{
		"project_id": ev.ProjectID,
		"event_id":   ev.EventID,
	})
	log.WithField("deleted_by", ev.Prior.EngineerID).Info("Project deletion cascade started")

	flags := models.SoftDelete{
		Deleted:   true,
		DeletedAt: deletedAt,
		DeletedBy: ev.Prior.EngineerID,
	}.Fields()

	result := &CascadeResult{
		ProjectID: ev.ProjectID,
		DeletedAt: deletedAt,
		DeletedBy: ev.Prior.EngineerID,
		Counts:    make(map[string]int, len(models.DependentCollections)),
	}

	var err error
	result.Notifications, err = s.updateMatching(ctx, log, models.NotificationsCollection, ev.ProjectID, flags)
	if err != nil {
		return nil, err
	}

	result.Assignments, err = s.updateMatching(ctx, log, models.WorkerAssignmentsCollection, ev.ProjectID, map[string]interface{}{
		models.FieldStatus:    models.AssignmentRemoved,
		models.FieldDecidedAt: deletedAt,
	})
	if err != nil {
		return nil, err
	}

	result.WorkerAccounts, err = s.updateMatching(ctx, log, models.WorkerAccountsCollection, ev.ProjectID, map[string]interface{}{
		models.FieldProjectID: nil,
		models.FieldRemovedAt: deletedAt,
	})
	if err != nil {
		return nil, err
	}

	counts := make([]int, len(models.DependentCollections))
	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range models.DependentCollections {
		i, collection := i, collection
		g.Go(func() error {
			n, err := s.updateMatching(gctx, log, collection, ev.ProjectID, flags)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, collection := range models.DependentCollections {
		result.Counts[collection] = counts[i]
		result.Total += counts[i]
	}

	log.WithField("total", result.Total).Info("Project deletion cascade completed")
	return result, nil
}

// updateMatching applies fields to every document of collection whose
// projectId equals projectID and returns how many were updated. Empty result
// sets commit nothing.
func (s *CascadeService) updateMatching(ctx context.Context, log logrus.FieldLogger, collection, projectID string, fields map[string]interface{}) (int, error) {
	filter := repository.Filter{Field: models.FieldProjectID, Value: projectID}
	opts := repository.QueryOptions{Limit: repository.MaxBatchWrites}

	total := 0
	for {
		docs, err := s.store.Query(ctx, collection, filter, opts)
		if err != nil {
			return total, fmt.Errorf("failed to query %s for project %s: %w", collection, projectID, err)
		}
		if len(docs) == 0 {
			break
		}

		batch := s.store.NewBatch()
		for _, doc := range docs {
			batch.Update(collection, doc.ID, fields)
		}
		if err := batch.Commit(ctx); err != nil {
			return total, fmt.Errorf("failed to commit %s batch for project %s: %w", collection, projectID, err)
		}
		total += len(docs)

		if len(docs) < repository.MaxBatchWrites {
			break
		}
		if !s.paged {
			log.WithFields(logrus.Fields{
				"collection": collection,
				"limit":      repository.MaxBatchWrites,
			}).Warn("Cascade filled a whole batch; documents past the write limit may remain unflagged")
			break
		}
		last := docs[len(docs)-1]
		opts.StartAfter = &last
	}

	log.WithFields(logrus.Fields{
		"collection": collection,
		"count":      total,
	}).Info("Cascade applied to collection")
	return total, nil
}
