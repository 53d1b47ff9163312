package apiexternal

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Fenrix23/watchlist_compare/slidingwindow"
)

const tmdbAPIBaseURL = "https://api.themoviedb.org/3"

// TheMovieDBSearch is the response of a movie search on TMDB.
type TheMovieDBSearch struct {
	TotalPages   int                       `json:"total_pages"`
	TotalResults int                       `json:"total_results"`
	Page         int                       `json:"page"`
	Results      []TheMovieDBFindMovieresults `json:"results"`
}

// TheMovieDBFindMovieresults is one candidate movie from a TMDB search.
type TheMovieDBFindMovieresults struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	OriginalLanguage string  `json:"original_language"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	GenreIDs         []int   `json:"genre_ids"`
}

// TheMovieDBMovie is the detailed record of one movie on TMDB.
type TheMovieDBMovie struct {
	ID               int     `json:"id"`
	ImdbID           string  `json:"imdb_id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	OriginalLanguage string  `json:"original_language"`
	Overview         string  `json:"overview"`
	Tagline          string  `json:"tagline"`
	Status           string  `json:"status"`
	ReleaseDate      string  `json:"release_date"`
	Runtime          int     `json:"runtime"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Budget           int     `json:"budget"`
	Revenue          int64   `json:"revenue"`
	Genres           []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
	SpokenLanguages []struct {
		Iso6391 string `json:"iso_639_1"`
		Name    string `json:"name"`
	} `json:"spoken_languages"`
	Credits TheMovieDBMovieCredits `json:"credits"`
}

// TheMovieDBMovieCredits holds the cast and crew of a movie.
type TheMovieDBMovieCredits struct {
	ID   int `json:"id"`
	Cast []struct {
		Name      string `json:"name"`
		Character string `json:"character"`
		Order     int    `json:"order"`
	} `json:"cast"`
	Crew []struct {
		Name       string `json:"name"`
		Job        string `json:"job"`
		Department string `json:"department"`
	} `json:"crew"`
}

// TmdbClient is the client for the TMDB API with its own rate limiter.
type TmdbClient struct {
	APIKey  string
	BaseURL string
	Client  RLHTTPClient
}

// NewTmdbClient creates a new TMDB client with the given api key,
// rate limit (calls per seconds) and request timeout.
func NewTmdbClient(apikey string, seconds uint8, calls int, timeoutseconds uint16) *TmdbClient {
	if seconds == 0 {
		seconds = 1
	}
	if calls == 0 {
		calls = 1
	}
	rl := slidingwindow.NewLimiter(time.Duration(seconds)*time.Second, int64(calls))
	return &TmdbClient{
		APIKey:  apikey,
		BaseURL: tmdbAPIBaseURL,
		Client:  NewClient("tmdb", &rl, timeoutseconds),
	}
}

// SearchMovie searches TMDB for a movie by title. A year greater than zero
// is passed as primary_release_year to narrow the candidates server-side.
func (t *TmdbClient) SearchMovie(ctx context.Context, title string, year int) (TheMovieDBSearch, error) {
	v := url.Values{}
	v.Set("api_key", t.APIKey)
	v.Set("query", title)
	v.Set("include_adult", "false")
	if year > 0 {
		v.Set("primary_release_year", strconv.Itoa(year))
	}
	return DoJSONType[TheMovieDBSearch](&t.Client, ctx, t.BaseURL+"/search/movie?"+v.Encode())
}

// MovieDetails fetches the full movie record including credits in one call.
func (t *TmdbClient) MovieDetails(ctx context.Context, id int) (TheMovieDBMovie, error) {
	return DoJSONType[TheMovieDBMovie](&t.Client, ctx,
		t.BaseURL+"/movie/"+strconv.Itoa(id)+"?api_key="+t.APIKey+"&append_to_response=credits")
}

// MovieCredits fetches only the cast and crew of a movie.
func (t *TmdbClient) MovieCredits(ctx context.Context, id int) (TheMovieDBMovieCredits, error) {
	return DoJSONType[TheMovieDBMovieCredits](&t.Client, ctx,
		t.BaseURL+"/movie/"+strconv.Itoa(id)+"/credits?api_key="+t.APIKey)
}

// DirectorFromCredits returns the names of all crew members with the job
// Director, joined with ", ". The job match is case insensitive.
func DirectorFromCredits(credits *TheMovieDBMovieCredits) string {
	var names []string
	for idx := range credits.Crew {
		if strings.EqualFold(credits.Crew[idx].Job, "Director") {
			names = append(names, credits.Crew[idx].Name)
		}
	}
	return strings.Join(names, ", ")
}

// ReleaseYear parses the year out of a TMDB release date (YYYY-MM-DD).
// It returns 0 when the date is empty or malformed.
func ReleaseYear(releasedate string) int {
	if len(releasedate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(releasedate[:4])
	if err != nil {
		return 0
	}
	return year
}
