package database

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// TmdbMovie is one cached metadata record from TMDB.
type TmdbMovie struct {
	TmdbID           int             `db:"tmdb_id"`
	Title            string          `db:"title"`
	OriginalTitle    sql.NullString  `db:"original_title"`
	Year             int             `db:"year"`
	Director         sql.NullString  `db:"director"`
	Rating           sql.NullFloat64 `db:"rating"`
	PosterURL        sql.NullString  `db:"poster_url"`
	BackdropURL      sql.NullString  `db:"backdrop_url"`
	Overview         sql.NullString  `db:"overview"`
	Runtime          sql.NullInt64   `db:"runtime"`
	Genres           sql.NullString  `db:"genres"`
	VoteCount        sql.NullInt64   `db:"vote_count"`
	Popularity       sql.NullFloat64 `db:"popularity"`
	Budget           sql.NullInt64   `db:"budget"`
	Revenue          sql.NullInt64   `db:"revenue"`
	OriginalLanguage sql.NullString  `db:"original_language"`
	CreatedAt        sql.NullTime    `db:"created_at"`
	LastUpdated      sql.NullTime    `db:"last_updated"`
}

// CacheLookup is the outcome of a metadata cache probe.
type CacheLookup int

const (
	// CacheMiss means no cached record exists.
	CacheMiss CacheLookup = iota
	// CacheFound means a complete cached record exists.
	CacheFound
	// CacheNeedsRefresh means a record exists but lacks the director, so
	// the credits must be fetched again.
	CacheNeedsRefresh
)

const tmdbMovieColumns = `tmdb_id, title, original_title, year, director, rating, poster_url, backdrop_url,
	overview, runtime, genres, vote_count, popularity, budget, revenue, original_language, created_at, last_updated`

// GetTmdbMovieByID returns the cached record for a tmdb id.
func GetTmdbMovieByID(tmdbid int) (TmdbMovie, bool) {
	return Getrowdata[TmdbMovie]("SELECT "+tmdbMovieColumns+" FROM tmdb_movies WHERE tmdb_id = ?", tmdbid)
}

// LookupTmdbMovie probes the cache by title and year and classifies the
// result. The original title matches too; a record whose director is empty
// counts as needing a refresh. A zero year matches on title alone.
func LookupTmdbMovie(title string, year int) (TmdbMovie, CacheLookup) {
	var row TmdbMovie
	var found bool
	if year != 0 {
		row, found = Getrowdata[TmdbMovie]("SELECT "+tmdbMovieColumns+
			" FROM tmdb_movies WHERE (title = ?1 COLLATE NOCASE OR original_title = ?1 COLLATE NOCASE) AND year = ?2", title, year)
	} else {
		row, found = Getrowdata[TmdbMovie]("SELECT "+tmdbMovieColumns+
			" FROM tmdb_movies WHERE title = ?1 COLLATE NOCASE OR original_title = ?1 COLLATE NOCASE", title)
	}
	if !found {
		return row, CacheMiss
	}
	if !row.Director.Valid || row.Director.String == "" {
		return row, CacheNeedsRefresh
	}
	return row, CacheFound
}

// UpsertTmdbMovie stores or replaces a cached metadata record. The
// created_at of an existing row is kept.
func UpsertTmdbMovie(m *TmdbMovie) error {
	return ExecN(`INSERT INTO tmdb_movies
		(tmdb_id, title, original_title, year, director, rating, poster_url, backdrop_url,
		 overview, runtime, genres, vote_count, popularity, budget, revenue, original_language, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(tmdb_id) DO UPDATE SET
			title = excluded.title,
			original_title = excluded.original_title,
			year = excluded.year,
			director = excluded.director,
			rating = excluded.rating,
			poster_url = excluded.poster_url,
			backdrop_url = excluded.backdrop_url,
			overview = excluded.overview,
			runtime = excluded.runtime,
			genres = excluded.genres,
			vote_count = excluded.vote_count,
			popularity = excluded.popularity,
			budget = excluded.budget,
			revenue = excluded.revenue,
			original_language = excluded.original_language,
			last_updated = CURRENT_TIMESTAMP`,
		m.TmdbID, m.Title, m.OriginalTitle, m.Year, m.Director, m.Rating, m.PosterURL, m.BackdropURL,
		m.Overview, m.Runtime, m.Genres, m.VoteCount, m.Popularity, m.Budget, m.Revenue, m.OriginalLanguage)
}

// SetTmdbMovieDirector fills in the director on an existing cached record.
func SetTmdbMovieDirector(tmdbid int, director string) error {
	return ExecN("UPDATE tmdb_movies SET director = ?, last_updated = CURRENT_TIMESTAMP WHERE tmdb_id = ?", director, tmdbid)
}

// ClearMovieCache drops all cached metadata records and detaches their
// ids from the watchlist rows, so nothing references a deleted record.
func ClearMovieCache() error {
	return WithTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("DELETE FROM tmdb_movies"); err != nil {
			return err
		}
		if _, err := tx.Exec("UPDATE friend_watchlists SET tmdb_id = NULL WHERE tmdb_id IS NOT NULL"); err != nil {
			return err
		}
		return nil
	})
}

// CountTmdbMovies returns the number of cached metadata records.
func CountTmdbMovies() int {
	return Getdatarow[int]("SELECT COUNT(*) FROM tmdb_movies")
}
