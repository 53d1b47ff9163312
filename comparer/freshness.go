package comparer

import (
	"context"
	"time"

	"github.com/Fenrix23/watchlist_compare/database"
	"github.com/Fenrix23/watchlist_compare/logger"
)

// trustWindow is how long a completed sync is trusted without probing the
// remote watchlist size at all.
const trustWindow = 2 * time.Hour

// CountProber checks the current remote watchlist size of a user.
type CountProber interface {
	CountWatchlist(ctx context.Context, username string) (int, error)
}

// FreshnessPolicy decides whether a cached watchlist can be served without
// a re-scrape.
type FreshnessPolicy struct {
	Prober CountProber
	// MaxAge is the hard cutoff; older caches are always stale.
	MaxAge time.Duration
	// AssumeFreshOnProbeError keeps serving the cache when the remote
	// count probe fails instead of forcing a re-scrape.
	AssumeFreshOnProbeError bool
}

// IsFresh reports whether the cached watchlist of a friend is current
// enough to serve. Only a completed sync can be fresh. Inside the trust
// window no network traffic happens; between the trust window and MaxAge
// the remote count is probed and compared against the cached total.
func (p *FreshnessPolicy) IsFresh(ctx context.Context, username string) bool {
	status, found := database.GetSyncStatus(username)
	if !found || status.Status != database.SyncCompleted || !status.LastSync.Valid {
		return false
	}
	age := logger.TimeGetNow().Sub(status.LastSync.Time)
	if age >= p.MaxAge {
		return false
	}
	if age < trustWindow {
		return true
	}
	remote, err := p.Prober.CountWatchlist(ctx, username)
	if err != nil {
		logger.Logtype("warn", 0).
			Err(err).
			Str("user", logger.RedactUser(username)).
			Bool("assume_fresh", p.AssumeFreshOnProbeError).
			Msg("count probe failed")
		return p.AssumeFreshOnProbeError
	}
	if remote != status.TotalMovies {
		logger.Logtype("debug", 0).
			Str("user", logger.RedactUser(username)).
			Int("cached", status.TotalMovies).
			Int("remote", remote).
			Msg("cache stale by count")
		return false
	}
	return true
}
