package metadata

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/Fenrix23/watchlist_compare/apiexternal"
	"github.com/Fenrix23/watchlist_compare/comparer"
	"github.com/Fenrix23/watchlist_compare/database"
)

func TestMain(m *testing.M) {
	if err := database.InitDB(":memory:"); err != nil {
		panic(err)
	}
	if err := database.UpgradeDB(); err != nil {
		panic(err)
	}
	code := m.Run()
	database.CloseDB()
	os.Exit(code)
}

type fakeTmdb struct {
	searches    map[string]apiexternal.TheMovieDBSearch
	details     map[int]apiexternal.TheMovieDBMovie
	credits     map[int]apiexternal.TheMovieDBMovieCredits
	searchErr   error
	searchCalls int
	creditCalls int
}

func (f *fakeTmdb) SearchMovie(_ context.Context, title string, _ int) (apiexternal.TheMovieDBSearch, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return apiexternal.TheMovieDBSearch{}, f.searchErr
	}
	return f.searches[strings.ToLower(title)], nil
}

func (f *fakeTmdb) MovieDetails(_ context.Context, id int) (apiexternal.TheMovieDBMovie, error) {
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return apiexternal.TheMovieDBMovie{}, errors.New("no such movie")
}

func (f *fakeTmdb) MovieCredits(_ context.Context, id int) (apiexternal.TheMovieDBMovieCredits, error) {
	f.creditCalls++
	if c, ok := f.credits[id]; ok {
		return c, nil
	}
	return apiexternal.TheMovieDBMovieCredits{}, errors.New("no credits")
}

func creditsWithDirector(name string) apiexternal.TheMovieDBMovieCredits {
	var credits apiexternal.TheMovieDBMovieCredits
	credits.Crew = append(credits.Crew, struct {
		Name       string `json:"name"`
		Job        string `json:"job"`
		Department string `json:"department"`
	}{Name: name, Job: "Director"})
	return credits
}

func cm(title string, year int, slug string) comparer.CommonMovie {
	return comparer.CommonMovie{Title: title, Year: year, Slug: slug, Friends: []string{"alice"}, FriendCount: 1}
}

func TestEnrichSynthesizedFallback(t *testing.T) {
	tmdb := &fakeTmdb{searchErr: errors.New("api down")}
	svc := NewService(tmdb)

	out := svc.EnrichMovies(context.Background(), []comparer.CommonMovie{cm("Totally Unknown Film", 2022, "totally-unknown-film")})
	if len(out) != 1 {
		t.Fatalf("got %d movies, want 1", len(out))
	}
	got := out[0]
	if !got.Synthesized {
		t.Error("fallback not marked synthesized")
	}
	if got.TmdbID >= 0 {
		t.Errorf("synthesized id %d, want negative", got.TmdbID)
	}
	if !strings.Contains(got.Overview, "letterboxd.com/film/totally-unknown-film") {
		t.Errorf("overview misses the film link: %q", got.Overview)
	}
}

func TestEnrichFromCacheNoNetwork(t *testing.T) {
	if err := database.UpsertTmdbMovie(&database.TmdbMovie{
		TmdbID:   27205,
		Title:    "Inception",
		Year:     2010,
		Director: sql.NullString{String: "Christopher Nolan", Valid: true},
		Rating:   sql.NullFloat64{Float64: 8.3, Valid: true},
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	tmdb := &fakeTmdb{}
	svc := NewService(tmdb)

	out := svc.EnrichMovies(context.Background(), []comparer.CommonMovie{cm("inception", 2010, "inception")})
	if len(out) != 1 {
		t.Fatalf("got %d movies", len(out))
	}
	if out[0].Director != "Christopher Nolan" || out[0].TmdbID != 27205 {
		t.Errorf("cache not used: %+v", out[0])
	}
	if tmdb.searchCalls != 0 || tmdb.creditCalls != 0 {
		t.Errorf("network used for a cached movie: %d searches, %d credits", tmdb.searchCalls, tmdb.creditCalls)
	}
}

func TestEnrichRefreshesMissingDirector(t *testing.T) {
	if err := database.UpsertTmdbMovie(&database.TmdbMovie{TmdbID: 603, Title: "The Matrix", Year: 1999}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	tmdb := &fakeTmdb{credits: map[int]apiexternal.TheMovieDBMovieCredits{
		603: creditsWithDirector("Lana Wachowski"),
	}}
	svc := NewService(tmdb)

	out := svc.EnrichMovies(context.Background(), []comparer.CommonMovie{cm("The Matrix", 1999, "the-matrix")})
	if out[0].Director != "Lana Wachowski" {
		t.Errorf("director not refreshed: %+v", out[0])
	}
	if tmdb.creditCalls != 1 {
		t.Errorf("credit calls %d, want 1", tmdb.creditCalls)
	}
	// The refresh must persist, so a second pass stays offline.
	tmdb.creditCalls = 0
	out = svc.EnrichMovies(context.Background(), []comparer.CommonMovie{cm("The Matrix", 1999, "the-matrix")})
	if out[0].Director != "Lana Wachowski" || tmdb.creditCalls != 0 {
		t.Errorf("refresh not persisted: %+v, %d credit calls", out[0], tmdb.creditCalls)
	}
}

func TestEnrichLiveSearch(t *testing.T) {
	user := "enrich_user"
	if err := database.ReconcileWatchlist(user, []database.ScrapedMovie{
		{Title: "Oldboy", Year: 2003, Slug: "oldboy"},
	}); err != nil {
		t.Fatalf("seed watchlist: %v", err)
	}
	tmdb := &fakeTmdb{
		searches: map[string]apiexternal.TheMovieDBSearch{
			"oldboy": {Results: []apiexternal.TheMovieDBFindMovieresults{
				{ID: 1, Title: "The Making of Oldboy", ReleaseDate: "2003-11-21", Popularity: 99},
				{ID: 2, Title: "Oldboy", ReleaseDate: "2013-11-27", Popularity: 50},
				{ID: 3, Title: "Oldboy", ReleaseDate: "2003-11-21", Popularity: 40, VoteAverage: 8.3},
			}},
		},
		details: map[int]apiexternal.TheMovieDBMovie{
			3: {
				ID: 3, Title: "Oldboy", ReleaseDate: "2003-11-21", VoteAverage: 8.3,
				Overview: "Revenge.", Runtime: 120,
				Credits: creditsWithDirector("Park Chan-wook"),
			},
		},
	}
	svc := NewService(tmdb)

	out := svc.EnrichMovies(context.Background(), []comparer.CommonMovie{cm("Oldboy", 2003, "oldboy")})
	got := out[0]
	if got.TmdbID != 3 {
		t.Fatalf("picked id %d, want 3 (exact year beats companion and remake)", got.TmdbID)
	}
	if got.Director != "Park Chan-wook" || got.Runtime != 120 {
		t.Errorf("details not applied: %+v", got)
	}

	if _, found := database.GetTmdbMovieByID(3); !found {
		t.Error("live result not cached")
	}
	entries := database.GetFriendWatchlist(user)
	if len(entries) != 1 || !entries[0].TmdbID.Valid || entries[0].TmdbID.Int64 != 3 {
		t.Errorf("tmdb id not attached to the watchlist row: %+v", entries)
	}
}

func TestPickResult(t *testing.T) {
	results := []apiexternal.TheMovieDBFindMovieresults{
		{ID: 1, Title: "Film", ReleaseDate: "2001-01-01", Popularity: 10},
		{ID: 2, Title: "Film", ReleaseDate: "2000-06-01", Popularity: 5},
		{ID: 3, Title: "Film", ReleaseDate: "2000-02-01", Popularity: 5, VoteAverage: 9},
	}
	picked := pickResult(results, "Film", 2000)
	if picked.ID != 3 {
		t.Errorf("picked %d, want 3 (exact year, popularity tie, higher rating)", picked.ID)
	}

	picked = pickResult(results, "Film", 0)
	if picked.ID != 1 {
		t.Errorf("picked %d, want 1 (highest popularity without a year)", picked.ID)
	}

	withDocumentary := []apiexternal.TheMovieDBFindMovieresults{
		{ID: 4, Title: "Film: A Documentary", ReleaseDate: "2000-01-01", Popularity: 80},
		{ID: 5, Title: "Film", ReleaseDate: "2000-03-01", Popularity: 2},
	}
	if picked = pickResult(withDocumentary, "Film", 2000); picked.ID != 5 {
		t.Errorf("picked %d, want 5 (documentary spin-off filtered)", picked.ID)
	}

	companionOnly := []apiexternal.TheMovieDBFindMovieresults{
		{ID: 7, Title: "Behind the Scenes of Film", ReleaseDate: "2000-01-01", Popularity: 1},
	}
	if picked = pickResult(companionOnly, "Film", 2000); picked == nil || picked.ID != 7 {
		t.Error("companion filter must not empty the candidate set")
	}

	if pickResult(nil, "Film", 2000) != nil {
		t.Error("empty results must return nil")
	}
}

func TestEnhanceBasicOffline(t *testing.T) {
	if err := database.UpsertTmdbMovie(&database.TmdbMovie{
		TmdbID:   27205,
		Title:    "Inception",
		Year:     2010,
		Director: sql.NullString{String: "Christopher Nolan", Valid: true},
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	tmdb := &fakeTmdb{}
	svc := NewService(tmdb)
	out := svc.EnhanceBasic([]comparer.CommonMovie{
		cm("Inception", 2010, "inception"),
		cm("Never Heard Of It", 2024, "never-heard"),
	})
	if len(out) != 2 {
		t.Fatalf("got %d movies", len(out))
	}
	if out[0].Director == "" {
		t.Error("cached movie not enhanced")
	}
	if out[1].Synthesized || out[1].Director != "" {
		t.Errorf("unknown movie should pass through untouched: %+v", out[1])
	}
	if tmdb.searchCalls != 0 || tmdb.creditCalls != 0 {
		t.Error("basic enhancement used the network")
	}
}
