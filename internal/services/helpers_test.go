package services

import (
	"context"
	"testing"

	"github.com/Dias221467/sitetrack-functions/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

func mustGet(t *testing.T, store *repository.MemoryStore, collection, id string) map[string]interface{} {
	t.Helper()
	doc, err := store.Get(context.Background(), collection, id)
	require.NoError(t, err)
	return doc.Fields
}
