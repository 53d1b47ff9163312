package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Fenrix23/watchlist_compare/config"
	"github.com/Fenrix23/watchlist_compare/database"
	"github.com/Fenrix23/watchlist_compare/letterboxd"
	"github.com/Fenrix23/watchlist_compare/logger"
)

// Scheduler refreshes stale friend caches in the background on a cron
// schedule.
type Scheduler struct {
	cron    *cron.Cron
	scraper *letterboxd.Scraper
}

// New creates a scheduler around the shared scraper.
func New(scraper *letterboxd.Scraper) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		scraper: scraper,
	}
}

// Start registers the refresh job when a cron expression is configured
// and starts the scheduler. Without an expression nothing runs.
func (s *Scheduler) Start() error {
	general := config.GetSettingsGeneral()
	if general.RefreshCron == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(general.RefreshCron, s.refreshStale); err != nil {
		return err
	}
	s.cron.Start()
	logger.Logtype("info", 0).
		Str("schedule", general.RefreshCron).
		Msg("background refresh scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// refreshStale walks every friend whose cache is past the maximum age and
// reconciles the result. Each run gets a job id so its log lines group.
func (s *Scheduler) refreshStale() {
	general := config.GetSettingsGeneral()
	jobid := uuid.New().String()
	stale := database.GetStaleFriends(general.CacheMaxAgeHours)
	if len(stale) == 0 {
		return
	}
	logger.Logtype("info", 0).
		Str("job", jobid).
		Int("friends", len(stale)).
		Msg("refreshing stale watchlists")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	for _, name := range stale {
		if ctx.Err() != nil {
			return
		}
		if err := database.SetSyncStatus(name, database.SyncPending, 0, ""); err != nil {
			logger.Logtype("warn", 0).
				Err(err).
				Str("job", jobid).
				Str("user", logger.RedactUser(name)).
				Msg("skipping refresh")
			continue
		}
		movies, err := s.scraper.WalkWatchlist(ctx, name)
		if err != nil {
			_ = database.SetSyncStatus(name, database.SyncFailed, 0, err.Error())
			logger.Logtype("warn", 0).
				Err(err).
				Str("job", jobid).
				Str("user", logger.RedactUser(name)).
				Msg("refresh walk failed")
			continue
		}
		if err := database.ReconcileWatchlist(name, movies); err != nil {
			logger.Logtype("error", 0).
				Err(err).
				Str("job", jobid).
				Str("user", logger.RedactUser(name)).
				Msg("refresh reconcile failed")
		}
	}
	logger.Logtype("info", 0).
		Str("job", jobid).
		Msg("refresh run finished")
}
