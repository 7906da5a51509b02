package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/sitetrack-functions/internal/models"
	"github.com/Dias221467/sitetrack-functions/internal/repository"
	"github.com/Dias221467/sitetrack-functions/internal/services"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// ChangeEvent is the subset of a MongoDB change stream event the watcher reads.
type ChangeEvent struct {
	ResumeToken struct {
		Data string `bson:"_data"`
	} `bson:"_id"`
	OperationType string              `bson:"operationType"`
	ClusterTime   primitive.Timestamp `bson:"clusterTime"`
	WallTime      time.Time           `bson:"wallTime"`
	DocumentKey   struct {
		ID interface{} `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.M `bson:"fullDocument"`
	FullDocumentBeforeChange bson.M `bson:"fullDocumentBeforeChange"`
}

// Time is the wall time of the change, falling back to the cluster time.
func (e ChangeEvent) Time() time.Time {
	if !e.WallTime.IsZero() {
		return e.WallTime.UTC()
	}
	if e.ClusterTime.T != 0 {
		return time.Unix(int64(e.ClusterTime.T), 0).UTC()
	}
	return time.Time{}
}

// ProjectDeletedFromChange converts a delete event on projects. The prior
// state is only present when pre-images are enabled on the collection.
func ProjectDeletedFromChange(e ChangeEvent) services.ProjectDeletedEvent {
	id := repository.IDString(e.DocumentKey.ID)
	return services.ProjectDeletedEvent{
		EventID:   e.ResumeToken.Data,
		ProjectID: id,
		Time:      e.Time(),
		Prior:     models.ProjectFromFields(id, e.FullDocumentBeforeChange),
	}
}

// NotificationCreatedFromChange converts an insert event on notifications.
func NotificationCreatedFromChange(e ChangeEvent) services.NotificationCreatedEvent {
	id := repository.IDString(e.DocumentKey.ID)
	return services.NotificationCreatedEvent{
		EventID:        e.ResumeToken.Data,
		NotificationID: id,
		Notification:   models.NotificationFromFields(id, e.FullDocument),
	}
}

// ChangeWatcher feeds project deletions and notification inserts from
// MongoDB change streams into the event handlers.
type ChangeWatcher struct {
	db            *mongo.Database
	cascade       *services.CascadeService
	notifications *services.NotificationService
	maxAttempts   int
	backoff       time.Duration
	log           logrus.FieldLogger
}

func NewChangeWatcher(db *mongo.Database, cascade *services.CascadeService, notifications *services.NotificationService, maxAttempts int, log logrus.FieldLogger) *ChangeWatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ChangeWatcher{
		db:            db,
		cascade:       cascade,
		notifications: notifications,
		maxAttempts:   maxAttempts,
		backoff:       2 * time.Second,
		log:           log,
	}
}

// Run watches both collections until ctx is cancelled.
func (w *ChangeWatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "delete"}}}}}
		opts := options.ChangeStream().SetFullDocumentBeforeChange(options.WhenAvailable)
		return w.watch(gctx, models.ProjectsCollection, pipeline, opts, func(e ChangeEvent) error {
			if e.FullDocumentBeforeChange == nil {
				w.log.WithField("project_id", repository.IDString(e.DocumentKey.ID)).
					Warn("Project delete event has no pre-image, deletedBy will be empty")
			}
			_ = w.RunCascade(gctx, ProjectDeletedFromChange(e))
			return nil
		})
	})

	g.Go(func() error {
		pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}}}
		return w.watch(gctx, models.NotificationsCollection, pipeline, options.ChangeStream(), func(e ChangeEvent) error {
			w.notifications.HandleNotificationCreated(gctx, NotificationCreatedFromChange(e))
			return nil
		})
	})

	return g.Wait()
}

// watch reopens the stream after errors, resuming after the last handled
// event. An event whose handler fails is delivered again after the reopen.
func (w *ChangeWatcher) watch(ctx context.Context, collection string, pipeline mongo.Pipeline, opts *options.ChangeStreamOptions, handle func(ChangeEvent) error) error {
	log := w.log.WithField("collection", collection)
	var resumeToken bson.Raw

	for {
		if resumeToken != nil {
			opts.SetStartAfter(resumeToken)
		}
		stream, err := w.db.Collection(collection).Watch(ctx, pipeline, opts)
		if err == nil {
			log.Info("Watching change stream")
			if resumeToken == nil {
				resumeToken = stream.ResumeToken()
			}
			for stream.Next(ctx) {
				var e ChangeEvent
				if decodeErr := stream.Decode(&e); decodeErr != nil {
					log.WithError(decodeErr).Error("Failed to decode change event")
					continue
				}
				resumeToken, err = handleEvent(resumeToken, stream.ResumeToken(), e, handle)
				if err != nil {
					break
				}
			}
			if err == nil {
				err = stream.Err()
			}
			stream.Close(context.Background())
		}

		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).Warn("Change stream interrupted, reopening")
		if !sleep(ctx, w.backoff) {
			return nil
		}
	}
}

// handleEvent runs handle for e and returns the token to resume from: next
// once e is handled, current otherwise.
func handleEvent(current, next bson.Raw, e ChangeEvent, handle func(ChangeEvent) error) (bson.Raw, error) {
	if err := handle(e); err != nil {
		return current, err
	}
	return next, nil
}

// RunCascade runs the cascade for ev, retrying failed attempts with a linear
// backoff. Retrying the whole event is safe because the cascade converges.
func (w *ChangeWatcher) RunCascade(ctx context.Context, ev services.ProjectDeletedEvent) error {
	log := w.log.WithFields(logrus.Fields{
		"project_id": ev.ProjectID,
		"event_id":   ev.EventID,
	})

	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if _, err = w.cascade.HandleProjectDeleted(ctx, ev); err == nil {
			return nil
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Cascade attempt failed")
		if attempt < w.maxAttempts && !sleep(ctx, time.Duration(attempt)*w.backoff) {
			return ctx.Err()
		}
	}

	log.WithError(err).Error("Cascade failed after all attempts")
	return fmt.Errorf("cascade for project %s failed after %d attempts: %w", ev.ProjectID, w.maxAttempts, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
