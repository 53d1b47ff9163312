package metadata

import (
	"context"
	"database/sql"
	"math/rand"
	"strings"
	"time"

	"github.com/Fenrix23/watchlist_compare/apiexternal"
	"github.com/Fenrix23/watchlist_compare/comparer"
	"github.com/Fenrix23/watchlist_compare/database"
	"github.com/Fenrix23/watchlist_compare/letterboxd"
	"github.com/Fenrix23/watchlist_compare/logger"
)

// pacingBatchSize is how many live API lookups run before the enrichment
// loop sleeps for a second to stay clear of the TMDB burst limits.
const pacingBatchSize = 39

// EnrichedMovie is a common movie with metadata attached.
type EnrichedMovie struct {
	comparer.CommonMovie
	Director    string  `json:"director,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	Overview    string  `json:"overview,omitempty"`
	Runtime     int     `json:"runtime,omitempty"`
	Genres      string  `json:"genres,omitempty"`
	BackdropURL string  `json:"backdrop_url,omitempty"`
	// Synthesized marks placeholder metadata built without a TMDB hit.
	Synthesized bool `json:"synthesized,omitempty"`
}

// TmdbAPI is the slice of the TMDB client the enrichment needs.
type TmdbAPI interface {
	SearchMovie(ctx context.Context, title string, year int) (apiexternal.TheMovieDBSearch, error)
	MovieDetails(ctx context.Context, id int) (apiexternal.TheMovieDBMovie, error)
	MovieCredits(ctx context.Context, id int) (apiexternal.TheMovieDBMovieCredits, error)
}

// Service resolves movie metadata through the local cache first and the
// live TMDB API second.
type Service struct {
	Tmdb TmdbAPI
}

// NewService returns a metadata service backed by the given TMDB client.
func NewService(tmdb TmdbAPI) *Service {
	return &Service{Tmdb: tmdb}
}

// EnrichMovies attaches metadata to every common movie. Resolution order
// per movie: the tmdb id already on the watchlist row, the metadata cache
// by title and year, then a live search. Enrichment never fails a movie;
// when nothing resolves, a synthesized placeholder points at the film
// page. Live lookups are paced in batches.
func (s *Service) EnrichMovies(ctx context.Context, movies []comparer.CommonMovie) []EnrichedMovie {
	out := make([]EnrichedMovie, 0, len(movies))
	var livecalls int
	for idx := range movies {
		enriched, usedAPI := s.enrichOne(ctx, &movies[idx])
		out = append(out, enriched)
		if usedAPI {
			livecalls++
			if livecalls%pacingBatchSize == 0 {
				select {
				case <-ctx.Done():
					return out
				case <-time.After(time.Second):
				}
			}
		}
	}
	return out
}

func (s *Service) enrichOne(ctx context.Context, movie *comparer.CommonMovie) (EnrichedMovie, bool) {
	// Tier 1: the watchlist row already carries a resolved id.
	if movie.TmdbID != 0 {
		if cached, found := database.GetTmdbMovieByID(movie.TmdbID); found {
			if cached.Director.Valid && cached.Director.String != "" {
				return fromCache(movie, &cached), false
			}
			s.refreshDirector(ctx, &cached)
			return fromCache(movie, &cached), true
		}
	}

	// Tier 2: the metadata cache by title and year.
	cached, state := database.LookupTmdbMovie(movie.Title, movie.Year)
	switch state {
	case database.CacheFound:
		s.attachID(movie, cached.TmdbID)
		return fromCache(movie, &cached), false
	case database.CacheNeedsRefresh:
		used := s.refreshDirector(ctx, &cached)
		s.attachID(movie, cached.TmdbID)
		return fromCache(movie, &cached), used
	}

	// Tier 3: live search.
	if record, ok := s.resolveLive(ctx, movie.Title, movie.Year); ok {
		s.attachID(movie, record.TmdbID)
		return fromCache(movie, record), true
	}
	return synthesize(movie), true
}

// refreshDirector fetches the credits for a cached record missing its
// director and persists the result. Reports whether the API was called.
func (s *Service) refreshDirector(ctx context.Context, cached *database.TmdbMovie) bool {
	credits, err := s.Tmdb.MovieCredits(ctx, cached.TmdbID)
	if err != nil {
		logger.Logtype("warn", 0).
			Err(err).
			Int("tmdb_id", cached.TmdbID).
			Msg("credits refresh failed")
		return true
	}
	director := apiexternal.DirectorFromCredits(&credits)
	if director == "" {
		return true
	}
	cached.Director = sql.NullString{String: director, Valid: true}
	if err := database.SetTmdbMovieDirector(cached.TmdbID, director); err != nil {
		logger.Logtype("error", 0).
			Err(err).
			Int("tmdb_id", cached.TmdbID).
			Msg("persisting director failed")
	}
	return true
}

// attachID writes a resolved id back onto the movie and its cached
// watchlist rows.
func (s *Service) attachID(movie *comparer.CommonMovie, tmdbid int) {
	if tmdbid == 0 || movie.TmdbID == tmdbid {
		return
	}
	movie.TmdbID = tmdbid
	if movie.Slug != "" {
		if err := database.AttachTmdbIDBySlug(movie.Slug, tmdbid); err != nil {
			logger.Logtype("error", 0).
				Err(err).
				Int("tmdb_id", tmdbid).
				Msg("attaching tmdb id failed")
		}
	}
}

// makingOfMarkers identify companion features that shadow the actual film
// in search results.
var makingOfMarkers = []string{"making of", "making-of", "behind the scenes", "documentary"}

func looksLikeCompanion(result *apiexternal.TheMovieDBFindMovieresults, searched string) bool {
	title := strings.ToLower(result.Title)
	searchedLower := strings.ToLower(searched)
	for _, marker := range makingOfMarkers {
		if strings.Contains(title, marker) && !strings.Contains(searchedLower, marker) {
			return true
		}
	}
	return false
}

// pickResult chooses the best candidate: exact year matches beat the rest,
// then popularity, then rating. Companion features (making-of etc.) are
// dropped unless that would leave nothing.
func pickResult(results []apiexternal.TheMovieDBFindMovieresults, title string, year int) *apiexternal.TheMovieDBFindMovieresults {
	if len(results) == 0 {
		return nil
	}
	filtered := make([]apiexternal.TheMovieDBFindMovieresults, 0, len(results))
	for idx := range results {
		if !looksLikeCompanion(&results[idx], title) {
			filtered = append(filtered, results[idx])
		}
	}
	if len(filtered) == 0 {
		filtered = results
	}
	best := &filtered[0]
	for idx := 1; idx < len(filtered); idx++ {
		cand := &filtered[idx]
		if year > 0 {
			bestExact := apiexternal.ReleaseYear(best.ReleaseDate) == year
			candExact := apiexternal.ReleaseYear(cand.ReleaseDate) == year
			if candExact != bestExact {
				if candExact {
					best = cand
				}
				continue
			}
		}
		if cand.Popularity != best.Popularity {
			if cand.Popularity > best.Popularity {
				best = cand
			}
			continue
		}
		if cand.VoteAverage > best.VoteAverage {
			best = cand
		}
	}
	return best
}

// resolveLive searches TMDB, picks the best candidate, fetches its full
// record and persists it in the metadata cache.
func (s *Service) resolveLive(ctx context.Context, title string, year int) (*database.TmdbMovie, bool) {
	search, err := s.Tmdb.SearchMovie(ctx, title, year)
	if err != nil || len(search.Results) == 0 {
		if year > 0 {
			// Retry without the year constraint; scraped years are
			// occasionally off by one.
			search, err = s.Tmdb.SearchMovie(ctx, title, 0)
		}
		if err != nil || len(search.Results) == 0 {
			return nil, false
		}
	}
	picked := pickResult(search.Results, title, year)
	if picked == nil {
		return nil, false
	}
	details, err := s.Tmdb.MovieDetails(ctx, picked.ID)
	if err != nil {
		logger.Logtype("warn", 0).
			Err(err).
			Int("tmdb_id", picked.ID).
			Msg("movie details failed")
		return nil, false
	}
	record := recordFromDetails(&details)
	if err := database.UpsertTmdbMovie(record); err != nil {
		logger.Logtype("error", 0).
			Err(err).
			Int("tmdb_id", record.TmdbID).
			Msg("caching movie failed")
	}
	return record, true
}

func recordFromDetails(details *apiexternal.TheMovieDBMovie) *database.TmdbMovie {
	genres := make([]string, 0, len(details.Genres))
	for idx := range details.Genres {
		genres = append(genres, details.Genres[idx].Name)
	}
	record := &database.TmdbMovie{
		TmdbID: details.ID,
		Title:  details.Title,
		Year:   apiexternal.ReleaseYear(details.ReleaseDate),
	}
	if details.OriginalTitle != "" && details.OriginalTitle != details.Title {
		record.OriginalTitle = sql.NullString{String: details.OriginalTitle, Valid: true}
	}
	if details.OriginalLanguage != "" {
		record.OriginalLanguage = sql.NullString{String: details.OriginalLanguage, Valid: true}
	}
	if details.Budget > 0 {
		record.Budget = sql.NullInt64{Int64: int64(details.Budget), Valid: true}
	}
	if details.Revenue > 0 {
		record.Revenue = sql.NullInt64{Int64: details.Revenue, Valid: true}
	}
	if director := apiexternal.DirectorFromCredits(&details.Credits); director != "" {
		record.Director = sql.NullString{String: director, Valid: true}
	}
	if details.VoteAverage > 0 {
		record.Rating = sql.NullFloat64{Float64: details.VoteAverage, Valid: true}
	}
	if details.PosterPath != "" {
		record.PosterURL = sql.NullString{String: "https://image.tmdb.org/t/p/w500" + details.PosterPath, Valid: true}
	}
	if details.BackdropPath != "" {
		record.BackdropURL = sql.NullString{String: "https://image.tmdb.org/t/p/w1280" + details.BackdropPath, Valid: true}
	}
	if details.Overview != "" {
		record.Overview = sql.NullString{String: details.Overview, Valid: true}
	}
	if details.Runtime > 0 {
		record.Runtime = sql.NullInt64{Int64: int64(details.Runtime), Valid: true}
	}
	if len(genres) != 0 {
		record.Genres = sql.NullString{String: strings.Join(genres, ", "), Valid: true}
	}
	if details.VoteCount > 0 {
		record.VoteCount = sql.NullInt64{Int64: int64(details.VoteCount), Valid: true}
	}
	if details.Popularity > 0 {
		record.Popularity = sql.NullFloat64{Float64: details.Popularity, Valid: true}
	}
	return record
}

func fromCache(movie *comparer.CommonMovie, cached *database.TmdbMovie) EnrichedMovie {
	enriched := EnrichedMovie{
		CommonMovie: *movie,
		Director:    cached.Director.String,
		Rating:      cached.Rating.Float64,
		Overview:    cached.Overview.String,
		Runtime:     int(cached.Runtime.Int64),
		Genres:      cached.Genres.String,
		BackdropURL: cached.BackdropURL.String,
	}
	enriched.TmdbID = cached.TmdbID
	if enriched.PosterURL == "" {
		enriched.PosterURL = cached.PosterURL.String
	}
	return enriched
}

// synthesize builds a placeholder so a movie without any metadata still
// renders. The id is random negative to never collide with real ids and
// the overview links to the film page.
func synthesize(movie *comparer.CommonMovie) EnrichedMovie {
	enriched := EnrichedMovie{
		CommonMovie: *movie,
		Synthesized: true,
	}
	enriched.TmdbID = -(rand.Intn(1_000_000) + 1)
	if movie.Slug != "" {
		enriched.Overview = "No metadata found. See " + letterboxd.FilmURL(movie.Slug)
	} else {
		enriched.Overview = "No metadata found."
	}
	return enriched
}

// EnhanceBasic attaches metadata from the local cache only. No network
// traffic happens; unresolved movies pass through unchanged.
func (s *Service) EnhanceBasic(movies []comparer.CommonMovie) []EnrichedMovie {
	out := make([]EnrichedMovie, 0, len(movies))
	for idx := range movies {
		movie := &movies[idx]
		if movie.TmdbID != 0 {
			if cached, found := database.GetTmdbMovieByID(movie.TmdbID); found {
				out = append(out, fromCache(movie, &cached))
				continue
			}
		}
		if cached, state := database.LookupTmdbMovie(movie.Title, movie.Year); state != database.CacheMiss {
			out = append(out, fromCache(movie, &cached))
			continue
		}
		out = append(out, EnrichedMovie{CommonMovie: *movie})
	}
	return out
}
