package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Dias221467/sitetrack-functions/internal/models"
	"github.com/Dias221467/sitetrack-functions/internal/push"
	"github.com/Dias221467/sitetrack-functions/internal/repository"
	"github.com/Dias221467/sitetrack-functions/internal/services"
	"github.com/Dias221467/sitetrack-functions/pkg/logger"
	"github.com/Dias221467/sitetrack-functions/pkg/middleware"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "trigger-secret"

type recordingMessenger struct {
	sent []*push.Message
	err  error
}

func (m *recordingMessenger) Send(ctx context.Context, msg *push.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func newTestRouter(store repository.Store, messenger push.Messenger) http.Handler {
	log, _ := test.NewNullLogger()
	cascade := services.NewCascadeService(store, log, false)
	notifications := services.NewNotificationService(services.NewRecipientResolver(store, log), messenger, nil, log)
	purge := services.NewPurgeService(store, log)
	return NewRouter(NewTriggerHandler(cascade, notifications), NewMaintenanceHandler(purge), testSecret)
}

func post(t *testing.T, h http.Handler, path string, body interface{}, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		token, err := middleware.GenerateToken("test", testSecret)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProjectDeletedTrigger(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Put("materials", "m1", map[string]interface{}{"projectId": "P1"})
	store.Put("equipment", "e1", map[string]interface{}{"projectId": "P1"})
	router := newTestRouter(store, &recordingMessenger{})

	rec := post(t, router, "/triggers/projects/P1/deleted", map[string]interface{}{
		"eventId": "evt-1",
		"time":    "2026-03-14T09:30:00Z",
		"data":    map[string]interface{}{"engineerId": "E1", "name": "Tower B"},
	}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	var result services.CascadeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "P1", result.ProjectID)
	assert.Equal(t, "E1", result.DeletedBy)
	assert.Equal(t, 2, result.Total)

	doc, err := store.Get(context.Background(), "materials", "m1")
	require.NoError(t, err)
	assert.Equal(t, true, doc.Fields["deleted"])
	assert.Equal(t, "E1", doc.Fields["deletedBy"])
}

func TestProjectDeletedTriggerFailureAsksForRetry(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Put("materials", "m1", map[string]interface{}{"projectId": "P1"})
	store.FailCollection("materials", errors.New("unavailable"))
	router := newTestRouter(store, &recordingMessenger{})

	rec := post(t, router, "/triggers/projects/P1/deleted", map[string]interface{}{
		"data": map[string]interface{}{"engineerId": "E1"},
	}, true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTriggerRejectsMissingToken(t *testing.T) {
	router := newTestRouter(repository.NewMemoryStore(), &recordingMessenger{})

	rec := post(t, router, "/triggers/projects/P1/deleted", map[string]interface{}{}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTriggerRejectsBadPayload(t *testing.T) {
	hook := test.NewLocal(logger.Log)
	defer hook.Reset()
	router := newTestRouter(repository.NewMemoryStore(), &recordingMessenger{})

	token, err := middleware.GenerateToken("test", testSecret)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/triggers/notifications/n1/created", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var messages []string
	for _, entry := range hook.AllEntries() {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "Invalid trigger payload")
}

func TestNotificationCreatedTrigger(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.Seed(models.WorkerAccountsCollection, "W1", models.WorkerAccount{FCMToken: "tok-w1"}))
	messenger := &recordingMessenger{}
	router := newTestRouter(store, messenger)

	rec := post(t, router, "/triggers/notifications/n1/created", map[string]interface{}{
		"data": map[string]interface{}{
			"userId": "W1",
			"type":   "assignment",
			"title":  "Assigned",
			"body":   "You were assigned to Tower B",
		},
	}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["dispatched"])
	assert.Equal(t, models.WorkerAccountsCollection, resp["collection"])

	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "tok-w1", messenger.sent[0].Token)
	assert.Equal(t, "n1", messenger.sent[0].Data["notificationId"])
	assert.Equal(t, "", messenger.sent[0].Data["projectId"])
}

func TestNotificationCreatedTriggerAcknowledgesFailures(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.Seed(models.EngineerAccountsCollection, "E1", models.EngineerAccount{FCMToken: "tok"}))
	router := newTestRouter(store, &recordingMessenger{err: errors.New("transport down")})

	rec := post(t, router, "/triggers/notifications/n1/created", map[string]interface{}{
		"data": map[string]interface{}{"userId": "E1", "title": "t", "body": "b"},
	}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dispatched":false}`, rec.Body.String())
}

func TestPurgeEndpoint(t *testing.T) {
	store := repository.NewMemoryStore()
	for i := 0; i < 5; i++ {
		store.Put("notifications", fmt.Sprintf("n%d", i), map[string]interface{}{"deleted": true})
	}
	store.Put("notifications", "keep", map[string]interface{}{"deleted": false})
	router := newTestRouter(store, &recordingMessenger{})

	rec := post(t, router, "/maintenance/purge", PurgeRequest{
		Collection: "notifications",
		Field:      "deleted",
		Value:      true,
		BatchSize:  2,
	}, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":5}`, rec.Body.String())
	assert.Equal(t, 1, store.Count("notifications"))
	assert.Equal(t, 3, store.BatchCommits("notifications"))
}

func TestPurgeEndpointValidatesRequest(t *testing.T) {
	router := newTestRouter(repository.NewMemoryStore(), &recordingMessenger{})

	rec := post(t, router, "/maintenance/purge", PurgeRequest{Field: "deleted"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(repository.NewMemoryStore(), &recordingMessenger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
