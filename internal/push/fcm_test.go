package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFCMClientSend(t *testing.T) {
	var got fcmRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/sitetrack/messages:send", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"projects/sitetrack/messages/0:123"}`))
	}))
	defer server.Close()

	log, _ := test.NewNullLogger()
	client := NewFCMClient(server.URL, "sitetrack", "secret-token", log)

	id, err := client.Send(context.Background(), &Message{
		Token: "device-1",
		Title: "New task",
		Body:  "Check the scaffolding",
		Data:  map[string]string{"type": "task_assigned", "projectId": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/sitetrack/messages/0:123", id)

	assert.Equal(t, "device-1", got.Message.Token)
	assert.Equal(t, "New task", got.Message.Notification.Title)
	assert.Equal(t, "Check the scaffolding", got.Message.Notification.Body)
	assert.Equal(t, map[string]string{"type": "task_assigned", "projectId": ""}, got.Message.Data)
}

func TestFCMClientSendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))
	}))
	defer server.Close()

	log, hook := test.NewNullLogger()
	client := NewFCMClient(server.URL, "sitetrack", "secret-token", log)

	_, err := client.Send(context.Background(), &Message{Token: "stale"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Requested entity was not found.")
	assert.Equal(t, "NOT_FOUND", hook.LastEntry().Data["fcm_status"])
}

func TestFCMClientRejectsEmptyToken(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := NewFCMClient("http://127.0.0.1:1", "p", "t", log).Send(context.Background(), &Message{})
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestLogMessenger(t *testing.T) {
	log, hook := test.NewNullLogger()
	m := NewLogMessenger(log)

	id, err := m.Send(context.Background(), &Message{Token: "tok", Title: "Hi"})
	require.NoError(t, err)
	assert.Contains(t, id, "dry-run/")
	assert.Equal(t, id, hook.LastEntry().Data["message_id"])

	_, err = m.Send(context.Background(), &Message{})
	assert.ErrorIs(t, err, ErrEmptyToken)
}
