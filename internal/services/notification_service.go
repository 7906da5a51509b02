package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dias221467/sitetrack-functions/internal/models"
	"github.com/Dias221467/sitetrack-functions/internal/push"
	"github.com/Dias221467/sitetrack-functions/internal/repository"
	"github.com/sirupsen/logrus"
)

// NotificationCreatedEvent is delivered once per new notification document.
type NotificationCreatedEvent struct {
	EventID        string
	NotificationID string
	Notification   models.Notification
}

// DispatchResult describes a push that was handed to the transport.
type DispatchResult struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
	Collection     string `json:"collection"`
	MessageID      string `json:"messageId"`
}

// Recipient is an account resolved for a notification's userId.
type Recipient struct {
	UserID     string
	Collection string
	Token      string
}

// RecipientResolver looks a user up in an ordered list of account collections.
type RecipientResolver struct {
	store      repository.Store
	candidates []string
	log        logrus.FieldLogger
}

// NewRecipientResolver probes candidates in order. With no candidates it
// probes engineer accounts, then worker accounts.
func NewRecipientResolver(store repository.Store, log logrus.FieldLogger, candidates ...string) *RecipientResolver {
	if len(candidates) == 0 {
		candidates = []string{models.EngineerAccountsCollection, models.WorkerAccountsCollection}
	}
	return &RecipientResolver{store: store, candidates: candidates, log: log}
}

// Resolve returns the first account found for userID, or nil when no
// candidate collection holds it. A failed probe moves on to the next
// candidate; its error is returned only if no later candidate matches.
func (r *RecipientResolver) Resolve(ctx context.Context, userID string) (*Recipient, error) {
	var probeErr error
	for _, collection := range r.candidates {
		doc, err := r.store.Get(ctx, collection, userID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"user_id":    userID,
				"collection": collection,
			}).Warn("Recipient lookup failed, trying next collection")
			if probeErr == nil {
				probeErr = err
			}
			continue
		}
		return &Recipient{
			UserID:     userID,
			Collection: collection,
			Token:      models.StringField(doc.Fields, models.FieldFCMToken),
		}, nil
	}
	if probeErr != nil {
		return nil, fmt.Errorf("failed to resolve recipient %s: %w", userID, probeErr)
	}
	return nil, nil
}

// NotificationService turns new notification documents into push messages.
type NotificationService struct {
	resolver  *RecipientResolver
	messenger push.Messenger
	guard     push.DeliveryGuard
	log       logrus.FieldLogger
}

// NewNotificationService creates a NotificationService. guard may be nil.
func NewNotificationService(resolver *RecipientResolver, messenger push.Messenger, guard push.DeliveryGuard, log logrus.FieldLogger) *NotificationService {
	return &NotificationService{
		resolver:  resolver,
		messenger: messenger,
		guard:     guard,
		log:       log,
	}
}

// HandleNotificationCreated sends at most one push for ev. It never fails:
// errors are logged and reported as a nil result, because a retried event
// could push the same notification to the user twice.
func (s *NotificationService) HandleNotificationCreated(ctx context.Context, ev NotificationCreatedEvent) *DispatchResult {
	log := s.log.WithFields(logrus.Fields{
		"notification_id": ev.NotificationID,
		"user_id":         ev.Notification.UserID,
		"event_id":        ev.EventID,
	})

	result, err := s.dispatch(ctx, log, ev)
	if err != nil {
		log.WithError(err).Error("Failed to send push notification")
		return nil
	}
	return result
}

func (s *NotificationService) dispatch(ctx context.Context, log logrus.FieldLogger, ev NotificationCreatedEvent) (*DispatchResult, error) {
	userID := ev.Notification.UserID
	if userID == "" {
		log.Info("Notification has no recipient, skipping push")
		return nil, nil
	}

	recipient, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		log.Info("No account found for notification recipient, skipping push")
		return nil, nil
	}
	if recipient.Token == "" {
		log.WithField("collection", recipient.Collection).Info("Recipient has no push token, skipping push")
		return nil, nil
	}

	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, ev.NotificationID)
		if err != nil {
			log.WithError(err).Warn("Delivery guard unavailable, sending without it")
		} else if !ok {
			log.Info("Push already sent for notification, skipping")
			return nil, nil
		}
	}

	messageID, err := s.messenger.Send(ctx, BuildPushMessage(ev.NotificationID, ev.Notification, recipient.Token))
	if err != nil {
		if s.guard != nil {
			if relErr := s.guard.Release(ctx, ev.NotificationID); relErr != nil {
				log.WithError(relErr).Warn("Failed to release delivery guard")
			}
		}
		return nil, fmt.Errorf("failed to send push: %w", err)
	}

	log.WithFields(logrus.Fields{
		"collection": recipient.Collection,
		"message_id": messageID,
	}).Info("Push notification sent")

	return &DispatchResult{
		NotificationID: ev.NotificationID,
		UserID:         userID,
		Collection:     recipient.Collection,
		MessageID:      messageID,
	}, nil
}

// BuildPushMessage copies title and body verbatim and fills the data payload
// with string values, using "" for absent optional fields.
func BuildPushMessage(notificationID string, n models.Notification, token string) *push.Message {
	return &push.Message{
		Token: token,
		Title: n.Title,
		Body:  n.Body,
		Data: map[string]string{
			"type":           n.Type,
			"notificationId": notificationID,
			"projectId":      n.ProjectID,
			"relatedId":      n.RelatedID,
		},
	}
}
