package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const DefaultFCMBaseURL = "https://fcm.googleapis.com"

// ErrEmptyToken is returned when a message has no destination token.
var ErrEmptyToken = errors.New("push token is empty")

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
}

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// FCMClient sends messages through the Firebase Cloud Messaging HTTP v1 API.
type FCMClient struct {
	httpClient *resty.Client
	projectID  string
	log        logrus.FieldLogger
}

// NewFCMClient creates a client for projectID authorised with accessToken.
func NewFCMClient(baseURL, projectID, accessToken string, log logrus.FieldLogger) *FCMClient {
	if baseURL == "" {
		baseURL = DefaultFCMBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetAuthToken(accessToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &FCMClient{
		httpClient: client,
		projectID:  projectID,
		log:        log,
	}
}

// Send posts msg and returns the message name assigned by FCM.
func (c *FCMClient) Send(ctx context.Context, msg *Message) (string, error) {
	if msg.Token == "" {
		return "", ErrEmptyToken
	}

	data := msg.Data
	if data == nil {
		data = map[string]string{}
	}
	body := fcmRequest{Message: fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body},
		Data:         data,
	}}

	var result fcmResponse
	var failure fcmErrorResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("project", c.projectID).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post("/v1/projects/{project}/messages:send")
	if err != nil {
		return "", fmt.Errorf("failed to call FCM: %w", err)
	}
	if resp.IsError() {
		c.log.WithFields(logrus.Fields{
			"status_code": resp.StatusCode(),
			"fcm_status":  failure.Error.Status,
		}).Warn("FCM rejected message")
		return "", fmt.Errorf("FCM error: %s (status: %d)", failure.Error.Message, resp.StatusCode())
	}
	if result.Name == "" {
		return "", fmt.Errorf("FCM response has no message name")
	}
	return result.Name, nil
}
