package portfolio

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Refresher periodically re-marks open positions so dashboard P&L stays
// current between requests.
type Refresher struct {
	service *Service
	cron    *cron.Cron
	spec    string
}

// NewRefresher creates a refresher running on the given cron spec
// (e.g. "@every 1m").
func NewRefresher(service *Service, spec string) *Refresher {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Refresher{
		service: service,
		cron:    cron.New(),
		spec:    spec,
	}
}

// Start schedules the refresh job. The job stops when ctx is cancelled.
func (r *Refresher) Start(ctx context.Context) error {
	logger := log.With().Str("component", "portfolio_refresher").Logger()

	_, err := r.cron.AddFunc(r.spec, func() {
		jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		userIDs, err := r.service.ActiveUserIDs()
		if err != nil {
			logger.Error().Err(err).Msg("failed to list users with open positions")
			return
		}

		for _, userID := range userIDs {
			if jobCtx.Err() != nil {
				return
			}
			if err := r.service.RefreshUser(jobCtx, userID); err != nil {
				logger.Error().Err(err).Str("user_id", userID).Msg("failed to refresh portfolio")
			}
		}

		logger.Debug().Int("users", len(userIDs)).Msg("portfolio refresh pass complete")
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	logger.Info().Str("spec", r.spec).Msg("portfolio refresher started")

	go func() {
		<-ctx.Done()
		stopCtx := r.cron.Stop()
		<-stopCtx.Done()
		logger.Info().Msg("portfolio refresher stopped")
	}()

	return nil
}
