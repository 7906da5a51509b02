package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Dias221467/sitetrack-functions/internal/models"
	"github.com/Dias221467/sitetrack-functions/internal/services"
	"github.com/Dias221467/sitetrack-functions/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// TriggerEvent is the body the hosting platform posts for a document event.
// Data carries the document fields: the prior state for deletions, the new
// state for creations.
type TriggerEvent struct {
	EventID string                 `json:"eventId"`
	Time    time.Time              `json:"time"`
	Data    map[string]interface{} `json:"data"`
}

// TriggerHandler exposes the document event handlers over HTTP.
type TriggerHandler struct {
	Cascade       *services.CascadeService
	Notifications *services.NotificationService
}

func NewTriggerHandler(cascade *services.CascadeService, notifications *services.NotificationService) *TriggerHandler {
	return &TriggerHandler{
		Cascade:       cascade,
		Notifications: notifications,
	}
}

// POST /triggers/projects/{projectId}/deleted
// Responds 500 when the cascade fails so the platform retries the event.
func (h *TriggerHandler) ProjectDeletedHandler(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	ev, ok := decodeTriggerEvent(w, r)
	if !ok {
		return
	}

	result, err := h.Cascade.HandleProjectDeleted(r.Context(), services.ProjectDeletedEvent{
		EventID:   ev.EventID,
		ProjectID: projectID,
		Time:      ev.Time,
		Prior:     models.ProjectFromFields(projectID, ev.Data),
	})
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"project_id": projectID,
			"event_id":   ev.EventID,
		}).Error("Project deletion cascade failed")
		http.Error(w, "Cascade failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /triggers/notifications/{notificationId}/created
// Always acknowledges a well-formed event, dispatched or not.
func (h *TriggerHandler) NotificationCreatedHandler(w http.ResponseWriter, r *http.Request) {
	notificationID := mux.Vars(r)["notificationId"]

	ev, ok := decodeTriggerEvent(w, r)
	if !ok {
		return
	}

	result := h.Notifications.HandleNotificationCreated(r.Context(), services.NotificationCreatedEvent{
		EventID:        ev.EventID,
		NotificationID: notificationID,
		Notification:   models.NotificationFromFields(notificationID, ev.Data),
	})

	resp := map[string]interface{}{"dispatched": result != nil}
	if result != nil {
		resp["messageId"] = result.MessageID
		resp["collection"] = result.Collection
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeTriggerEvent(w http.ResponseWriter, r *http.Request) (*TriggerEvent, bool) {
	var ev TriggerEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		logger.Log.WithError(err).Warn("Invalid trigger payload")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return nil, false
	}
	defer r.Body.Close()

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Data == nil {
		ev.Data = map[string]interface{}{}
	}
	return &ev, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
