package cron

import (
	"context"
	"time"

	"github.com/Dias221467/sitetrack-functions/internal/services"
	"github.com/Dias221467/sitetrack-functions/pkg/logger"
	"github.com/robfig/cron/v3"
)

// StartPurgeCronJobs hard-deletes soft-deleted documents of collections on
// schedule. It returns nil without scheduling anything when schedule is empty.
func StartPurgeCronJobs(purgeService *services.PurgeService, schedule string, collections []string) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		deleted, err := purgeService.PurgeSoftDeleted(ctx, collections)
		if err != nil {
			logger.Log.WithError(err).WithField("deleted", deleted).Error("PurgeSoftDeleted failed")
			return
		}
		logger.Log.WithField("deleted", deleted).Info("Purged soft-deleted documents")
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
