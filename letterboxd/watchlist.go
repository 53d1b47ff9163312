package letterboxd

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/Fenrix23/watchlist_compare/apiexternal"
	"github.com/Fenrix23/watchlist_compare/database"
	"github.com/Fenrix23/watchlist_compare/logger"
)

const (
	// maxPages is the hard cap on walked watchlist pages.
	maxPages = 50
	// maxMovies caps the collected watchlist size.
	maxMovies = 500
	// probeMaxPages caps the pages fetched by the count probe.
	probeMaxPages = 10
	// fullPageSize is how many posters a full watchlist page carries.
	fullPageSize = 25

	fetchRetries = 3
)

// Scraper walks letterboxd pages through a shared rate limited client,
// pausing between page fetches.
type Scraper struct {
	client *apiexternal.RLHTTPClient
	delay  time.Duration
}

// NewScraper returns a Scraper using the given client and a politeness
// delay in milliseconds between page fetches.
func NewScraper(client *apiexternal.RLHTTPClient, delayms int) *Scraper {
	if delayms < 0 {
		delayms = 0
	}
	return &Scraper{client: client, delay: time.Duration(delayms) * time.Millisecond}
}

// fetchPage downloads one page and returns the parsed document plus the
// raw markup for the pagination heuristic. Status codes other than 2xx
// come back as errors without the URL.
func (s *Scraper) fetchPage(ctx context.Context, urlv string) (*html.Node, string, error) {
	resp, err := s.client.GetWithRetries(ctx, urlv, fetchRetries)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusNotFound {
			return nil, "", apiexternal.ErrNotFound
		}
		return nil, "", errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "read body")
	}
	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return nil, "", errors.Wrap(err, "parse html")
	}
	return doc, string(raw), nil
}

// pause waits the politeness delay or returns early on context cancel.
func (s *Scraper) pause(ctx context.Context) error {
	if s.delay == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.delay):
		return nil
	}
}

// WalkWatchlist collects the full watchlist of a user across pages. The
// username is validated before any request. The walk stops at an empty
// page, a page without a next indicator, 50 pages, or 500 movies. Errors
// carry the page index and a redacted user tag, never the raw username.
func (s *Scraper) WalkWatchlist(ctx context.Context, username string) ([]database.ScrapedMovie, error) {
	username, err := SanitizeUsername(username)
	if err != nil {
		return nil, err
	}
	tag := logger.RedactUser(username)
	var all []database.ScrapedMovie
	seen := make(map[string]struct{})
	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			if err := s.pause(ctx); err != nil {
				return nil, err
			}
		}
		doc, raw, err := s.fetchPage(ctx, WatchlistURL(username, page))
		if err != nil {
			return nil, errors.Wrapf(err, "watchlist page %d of %s", page, tag)
		}
		movies := ExtractMovies(doc)
		if len(movies) == 0 {
			break
		}
		for idx := range movies {
			key := strings.ToLower(movies[idx].Title) + "\x00" + movies[idx].Slug
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, movies[idx])
			if len(all) >= maxMovies {
				logger.Logtype("warn", 0).
					Str("user", tag).
					Int("page", page).
					Msg("watchlist capped")
				return all, nil
			}
		}
		if !HasNextPage(raw) {
			break
		}
	}
	logger.Logtype("debug", 0).
		Str("user", tag).
		Int("movies", len(all)).
		Msg("watchlist walk finished")
	return all, nil
}

// CountWatchlist probes the remote watchlist size without a full walk. A
// first page below a full page short-circuits; otherwise up to 10 pages
// are summed. The count is exact when the probe reaches the final page
// and a lower bound when the cap cuts it off.
func (s *Scraper) CountWatchlist(ctx context.Context, username string) (int, error) {
	username, err := SanitizeUsername(username)
	if err != nil {
		return 0, err
	}
	tag := logger.RedactUser(username)
	total := 0
	for page := 1; page <= probeMaxPages; page++ {
		if page > 1 {
			if err := s.pause(ctx); err != nil {
				return 0, err
			}
		}
		doc, raw, err := s.fetchPage(ctx, WatchlistURL(username, page))
		if err != nil {
			return 0, errors.Wrapf(err, "count probe page %d of %s", page, tag)
		}
		count := len(ExtractMovies(doc))
		total += count
		if count < fullPageSize || !HasNextPage(raw) {
			break
		}
	}
	return total, nil
}
