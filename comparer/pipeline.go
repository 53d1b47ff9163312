package comparer

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/Fenrix23/watchlist_compare/database"
	"github.com/Fenrix23/watchlist_compare/letterboxd"
	"github.com/Fenrix23/watchlist_compare/logger"
	"github.com/Fenrix23/watchlist_compare/pool"
)

// ErrPrimaryUnavailable is returned when the primary user's watchlist can
// neither be served fresh from cache nor scraped.
var ErrPrimaryUnavailable = errors.New("primary watchlist unavailable")

// WatchlistWalker scrapes complete watchlists and probes their size.
type WatchlistWalker interface {
	CountProber
	WalkWatchlist(ctx context.Context, username string) ([]database.ScrapedMovie, error)
}

// Pipeline runs the full comparison: sync the primary user, sync all
// friends with bounded parallelism, then intersect the watchlists.
type Pipeline struct {
	Scraper WatchlistWalker
	Policy  *FreshnessPolicy
	// Concurrency caps parallel friend syncs.
	Concurrency int
}

// CompareResult is the outcome of one comparison run.
type CompareResult struct {
	Primary       string        `json:"primary"`
	Friends       []string      `json:"friends"`
	FailedFriends []string      `json:"failed_friends,omitempty"`
	StaleFriends  []string      `json:"stale_friends,omitempty"`
	Movies        []CommonMovie `json:"movies"`
}

// syncUser brings a user's cache up to date when the freshness policy says
// so. It returns the cached entries after the sync.
func (p *Pipeline) syncUser(ctx context.Context, username string) ([]database.WatchlistEntry, error) {
	if p.Policy.IsFresh(ctx, username) {
		return database.GetFriendWatchlist(username), nil
	}
	if err := database.SetSyncStatus(username, database.SyncPending, 0, ""); err != nil {
		return nil, err
	}
	movies, err := p.Scraper.WalkWatchlist(ctx, username)
	if err != nil {
		if serr := database.SetSyncStatus(username, database.SyncFailed, 0, err.Error()); serr != nil {
			logger.Logtype("error", 0).
				Err(serr).
				Str("user", logger.RedactUser(username)).
				Msg("failed to record sync failure")
		}
		return nil, err
	}
	if err := database.ReconcileWatchlist(username, movies); err != nil {
		return nil, err
	}
	return database.GetFriendWatchlist(username), nil
}

// CompareWatchlists intersects the primary user's watchlist with those of
// the given friends. The primary sync must succeed; a friend whose sync
// fails falls back to its stale cache when one exists and is skipped
// otherwise. Friend syncs run in parallel up to the configured cap.
func (p *Pipeline) CompareWatchlists(ctx context.Context, primary string, friends []string) (CompareResult, error) {
	primary, err := letterboxd.SanitizeUsername(primary)
	if err != nil {
		return CompareResult{}, err
	}
	primaryEntries, err := p.syncUser(ctx, primary)
	if err != nil {
		return CompareResult{}, errors.Wrap(ErrPrimaryUnavailable, err.Error())
	}

	result := CompareResult{Primary: primary}
	friendEntries := make(map[string][]database.WatchlistEntry, len(friends))
	var mu sync.Mutex
	wg := pool.NewSizedGroup(p.Concurrency)
	for _, name := range friends {
		if _, err := letterboxd.SanitizeUsername(name); err != nil {
			mu.Lock()
			result.FailedFriends = append(result.FailedFriends, name)
			mu.Unlock()
			continue
		}
		wg.Add()
		go func(name string) {
			defer wg.Done()
			entries, err := p.syncUser(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Serve the stale cache over nothing at all.
				if cached := database.GetFriendWatchlist(name); len(cached) != 0 {
					logger.Logtype("warn", 0).
						Err(err).
						Str("user", logger.RedactUser(name)).
						Msg("sync failed, serving stale cache")
					friendEntries[name] = cached
					result.StaleFriends = append(result.StaleFriends, name)
					return
				}
				logger.Logtype("warn", 0).
					Err(err).
					Str("user", logger.RedactUser(name)).
					Msg("sync failed, skipping friend")
				result.FailedFriends = append(result.FailedFriends, name)
				return
			}
			friendEntries[name] = entries
		}(name)
	}
	wg.Wait()

	// Keep the caller's friend order for the matcher output.
	watchlists := make([]FriendWatchlist, 0, len(friendEntries))
	for _, name := range friends {
		if entries, ok := friendEntries[name]; ok {
			watchlists = append(watchlists, FriendWatchlist{Username: name, Entries: entries})
			result.Friends = append(result.Friends, name)
		}
	}
	sort.Strings(result.FailedFriends)
	sort.Strings(result.StaleFriends)
	result.Movies = FindCommonMovies(primaryEntries, watchlists)
	return result, nil
}
