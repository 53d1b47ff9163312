package comparer

import (
	"database/sql"
	"testing"

	"github.com/Fenrix23/watchlist_compare/database"
)

func entry(title string, year int, slug string) database.WatchlistEntry {
	return database.WatchlistEntry{
		MovieTitle:     title,
		MovieYear:      year,
		LetterboxdSlug: sql.NullString{String: slug, Valid: slug != ""},
	}
}

func TestFindCommonMovies(t *testing.T) {
	primary := []database.WatchlistEntry{
		entry("Inception", 2010, "inception"),
		entry("The Matrix", 1999, "the-matrix"),
		entry("Ronin", 1998, "ronin"),
	}
	friends := []FriendWatchlist{
		{Username: "zoe", Entries: []database.WatchlistEntry{
			entry("INCEPTION", 2010, "inception"),
			entry("Alien", 1979, "alien"),
		}},
		{Username: "alice", Entries: []database.WatchlistEntry{
			entry("Inception", 2010, "inception"),
			entry("The Matrix", 1999, "the-matrix"),
		}},
	}

	common := FindCommonMovies(primary, friends)
	if len(common) != 2 {
		t.Fatalf("got %d common movies, want 2", len(common))
	}
	// Primary order is preserved: Inception before The Matrix.
	if common[0].Title != "Inception" || common[1].Title != "The Matrix" {
		t.Errorf("order wrong: %+v", common)
	}
	if common[0].FriendCount != 2 || len(common[0].Friends) != 2 {
		t.Errorf("Inception friends %v", common[0].Friends)
	}
	// Friend order follows the supplied order, not alphabetical.
	if common[0].Friends[0] != "zoe" || common[0].Friends[1] != "alice" {
		t.Errorf("supplied friend order not preserved: %v", common[0].Friends)
	}
	if common[1].FriendCount != 1 || common[1].Friends[0] != "alice" {
		t.Errorf("Matrix match wrong: %+v", common[1])
	}
	if common[0].FriendBadge == "" {
		t.Error("badge missing")
	}
}

func TestFindCommonMoviesTitleOnlyIdentity(t *testing.T) {
	// The year is supplementary: a remake under the same title matches.
	primary := []database.WatchlistEntry{entry("Heat", 1995, "heat")}
	friends := []FriendWatchlist{
		{Username: "bob", Entries: []database.WatchlistEntry{entry("Heat", 2023, "heat-remake")}},
	}
	common := FindCommonMovies(primary, friends)
	if len(common) != 1 {
		t.Fatalf("got %d movies, want the year-collision match", len(common))
	}
	if common[0].Year != 1995 {
		t.Errorf("result year %d, want the primary's 1995", common[0].Year)
	}
}

func TestFindCommonMoviesNoFriends(t *testing.T) {
	primary := []database.WatchlistEntry{entry("Inception", 2010, "inception")}
	if got := FindCommonMovies(primary, nil); len(got) != 0 {
		t.Errorf("got %d movies without friends, want 0", len(got))
	}
	friends := []FriendWatchlist{{Username: "alice", Entries: []database.WatchlistEntry{entry("Heat", 1995, "")}}}
	if got := FindCommonMovies(nil, friends); len(got) != 0 {
		t.Errorf("got %d movies without a primary list, want 0", len(got))
	}
}

func TestFriendBadge(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{1, "👤"},
		{2, "👥"},
		{3, "👥👤"},
		{4, "👥👥"},
		{10, "👥👥👥👥👥"},
		{11, "👥👥👥👥👥+ (11)"},
		{15, "👥👥👥👥👥+ (15)"},
		{20, "🎭🎭🎭 (20)"},
		{40, "🏟️ (40)"},
		{100, "🌍 (100)"},
	}
	for _, tt := range tests {
		if got := FriendBadge(tt.count); got != tt.want {
			t.Errorf("FriendBadge(%d) = %q, want %q", tt.count, got, tt.want)
		}
	}
	if got := FriendBadge(0); got != "" {
		t.Errorf("FriendBadge(0) = %q, want empty", got)
	}
}

func TestTitleKey(t *testing.T) {
	if titleKey("  The Matrix ") != titleKey("the matrix") {
		t.Error("keys differ for case and whitespace variants")
	}
	if titleKey("Heat") == titleKey("Heat 2") {
		t.Error("distinct titles collide")
	}
}
