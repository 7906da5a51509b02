package push

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogMessenger logs messages instead of sending them. It is used when no
// FCM project is configured.
type LogMessenger struct {
	log logrus.FieldLogger
}

func NewLogMessenger(log logrus.FieldLogger) *LogMessenger {
	return &LogMessenger{log: log}
}

func (m *LogMessenger) Send(ctx context.Context, msg *Message) (string, error) {
	if msg.Token == "" {
		return "", ErrEmptyToken
	}
	id := "dry-run/" + uuid.NewString()
	m.log.WithFields(logrus.Fields{
		"message_id": id,
		"title":      msg.Title,
		"data":       msg.Data,
	}).Info("Push dispatch skipped (dry run)")
	return id, nil
}
