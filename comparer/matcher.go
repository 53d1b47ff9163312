package comparer

import (
	"strings"

	"github.com/Fenrix23/watchlist_compare/database"
	"github.com/Fenrix23/watchlist_compare/logger"
)

// FriendWatchlist pairs a friend with its cached watchlist. Order matters:
// the matcher reports sharing friends in the order they were supplied.
type FriendWatchlist struct {
	Username string
	Entries  []database.WatchlistEntry
}

// CommonMovie is one movie on the primary watchlist that at least one
// friend also has, with the sharing friends attached.
type CommonMovie struct {
	Title       string   `json:"title"`
	Year        int      `json:"year"`
	Slug        string   `json:"letterboxd_slug,omitempty"`
	PosterURL   string   `json:"poster_url,omitempty"`
	TmdbID      int      `json:"tmdb_id,omitempty"`
	Friends     []string `json:"friends"`
	FriendCount int      `json:"friend_count"`
	FriendBadge string   `json:"friend_badge"`
}

func titleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// FindCommonMovies intersects the primary watchlist with each friend's
// cached watchlist. Identity is the lower-cased title; the year is
// supplementary and intentionally not part of the match, so a remake can
// shadow the original. Such year collisions are logged at debug level as
// a known ambiguity. A movie counts as common when any friend shares it.
// The primary list's order and the supplied friend order are preserved.
func FindCommonMovies(primary []database.WatchlistEntry, friends []FriendWatchlist) []CommonMovie {
	type titleSet map[string]int // title key -> first seen year
	sets := make([]titleSet, len(friends))
	for fidx := range friends {
		set := make(titleSet, len(friends[fidx].Entries))
		for idx := range friends[fidx].Entries {
			key := titleKey(friends[fidx].Entries[idx].MovieTitle)
			if _, ok := set[key]; !ok {
				set[key] = friends[fidx].Entries[idx].MovieYear
			}
		}
		sets[fidx] = set
	}

	var common []CommonMovie
	for idx := range primary {
		key := titleKey(primary[idx].MovieTitle)
		var sharing []string
		for fidx := range friends {
			year, ok := sets[fidx][key]
			if !ok {
				continue
			}
			if year != primary[idx].MovieYear {
				logger.Logtype("debug", 0).
					Str("title", primary[idx].MovieTitle).
					Int("primary_year", primary[idx].MovieYear).
					Int("friend_year", year).
					Msg("title matched across different years")
			}
			sharing = append(sharing, friends[fidx].Username)
		}
		if len(sharing) == 0 {
			continue
		}
		movie := CommonMovie{
			Title:       primary[idx].MovieTitle,
			Year:        primary[idx].MovieYear,
			Slug:        primary[idx].LetterboxdSlug.String,
			PosterURL:   primary[idx].PosterURL.String,
			Friends:     sharing,
			FriendCount: len(sharing),
			FriendBadge: FriendBadge(len(sharing)),
		}
		if primary[idx].TmdbID.Valid {
			movie.TmdbID = int(primary[idx].TmdbID.Int64)
		}
		common = append(common, movie)
	}
	return common
}
