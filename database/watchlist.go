package database

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// WatchlistEntry is one cached movie of a friend's watchlist.
type WatchlistEntry struct {
	ID             uint           `db:"id"`
	FriendUsername string         `db:"friend_username"`
	MovieTitle     string         `db:"movie_title"`
	MovieYear      int            `db:"movie_year"`
	LetterboxdSlug sql.NullString `db:"letterboxd_slug"`
	TmdbID         sql.NullInt64  `db:"tmdb_id"`
	PosterURL      sql.NullString `db:"poster_url"`
	DateAdded      sql.NullTime   `db:"date_added"`
}

// ScrapedMovie is the extraction result handed to the reconciler.
type ScrapedMovie struct {
	Title     string
	Year      int
	Slug      string
	PosterURL string
}

const reconcileBatchSize = 25

// ReconcileWatchlist replaces the cached watchlist of a friend with the
// freshly scraped one in a single transaction:
//   - rows whose slug is no longer present are deleted; rows without a slug
//     are never deleted by the reconcile
//   - scraped movies are upserted, preserving a previously resolved tmdb_id
//     and the original date_added of surviving rows
//   - the friend row and the sync status are updated to completed
//
// Running it twice with the same input is a no-op beyond timestamps.
func ReconcileWatchlist(username string, movies []ScrapedMovie) error {
	return WithTx(func(tx *sqlx.Tx) error {
		if _, err := tx.Exec("INSERT INTO friends (username) VALUES (?) ON CONFLICT(username) DO NOTHING", username); err != nil {
			return errors.Wrap(err, "reconcile friend upsert")
		}

		slugs := make([]any, 0, len(movies))
		for idx := range movies {
			if movies[idx].Slug != "" {
				slugs = append(slugs, movies[idx].Slug)
			}
		}
		delquery := "DELETE FROM friend_watchlists WHERE friend_username = ? AND letterboxd_slug IS NOT NULL"
		delargs := append([]any{username}, slugs...)
		if len(slugs) != 0 {
			delquery += " AND letterboxd_slug NOT IN (?" + strings.Repeat(",?", len(slugs)-1) + ")"
		}
		if _, err := tx.Exec(delquery, delargs...); err != nil {
			return errors.Wrap(err, "reconcile delete")
		}

		slugged := make([]ScrapedMovie, 0, len(movies))
		for idx := range movies {
			if movies[idx].Slug == "" {
				if err := upsertUnslugged(tx, username, &movies[idx]); err != nil {
					return err
				}
				continue
			}
			slugged = append(slugged, movies[idx])
		}
		for start := 0; start < len(slugged); start += reconcileBatchSize {
			end := start + reconcileBatchSize
			if end > len(slugged) {
				end = len(slugged)
			}
			if err := upsertBatch(tx, username, slugged[start:end]); err != nil {
				return err
			}
		}

		if _, err := tx.Exec("UPDATE friends SET watchlist_count = ?, last_updated = CURRENT_TIMESTAMP WHERE username = ?", len(movies), username); err != nil {
			return errors.Wrap(err, "reconcile friend update")
		}
		if _, err := tx.Exec(`INSERT INTO friend_sync_status (friend_username, last_sync_timestamp, total_movies, sync_status, last_error)
			VALUES (?, CURRENT_TIMESTAMP, ?, 'completed', NULL)
			ON CONFLICT(friend_username) DO UPDATE SET
				last_sync_timestamp = CURRENT_TIMESTAMP,
				total_movies = excluded.total_movies,
				sync_status = excluded.sync_status,
				last_error = NULL`, username, len(movies)); err != nil {
			return errors.Wrap(err, "reconcile sync status")
		}
		return nil
	})
}

// upsertBatch writes up to reconcileBatchSize slugged movies in one
// statement. The subselects carry forward the tmdb_id and date_added of an
// existing row with the same slug so re-syncs do not wipe resolved
// metadata.
func upsertBatch(tx *sqlx.Tx, username string, movies []ScrapedMovie) error {
	var bld strings.Builder
	bld.WriteString(`INSERT OR REPLACE INTO friend_watchlists
		(friend_username, movie_title, movie_year, letterboxd_slug, tmdb_id, poster_url, date_added) VALUES `)
	args := make([]any, 0, len(movies)*9)
	for idx := range movies {
		if idx != 0 {
			bld.WriteString(", ")
		}
		bld.WriteString(`(?, ?, ?, ?,
			(SELECT tmdb_id FROM friend_watchlists WHERE friend_username = ? AND letterboxd_slug = ?), ?,
			COALESCE((SELECT date_added FROM friend_watchlists WHERE friend_username = ? AND letterboxd_slug = ?), CURRENT_TIMESTAMP))`)
		poster := sql.NullString{String: movies[idx].PosterURL, Valid: movies[idx].PosterURL != ""}
		args = append(args,
			username, movies[idx].Title, movies[idx].Year, movies[idx].Slug,
			username, movies[idx].Slug, poster,
			username, movies[idx].Slug)
	}
	if _, err := tx.Exec(bld.String(), args...); err != nil {
		return errors.Wrap(err, "reconcile upsert batch")
	}
	return nil
}

// upsertUnslugged reconciles a movie that carries no slug. The unique
// index treats NULL slugs as distinct, so INSERT OR REPLACE would add a
// duplicate row on every sync; these rows match on title and year instead.
func upsertUnslugged(tx *sqlx.Tx, username string, movie *ScrapedMovie) error {
	poster := sql.NullString{String: movie.PosterURL, Valid: movie.PosterURL != ""}
	res, err := tx.Exec(`UPDATE friend_watchlists SET poster_url = COALESCE(?, poster_url)
		WHERE friend_username = ? AND letterboxd_slug IS NULL AND movie_title = ? AND movie_year = ?`,
		poster, username, movie.Title, movie.Year)
	if err != nil {
		return errors.Wrap(err, "reconcile unslugged update")
	}
	if affected, aerr := res.RowsAffected(); aerr == nil && affected > 0 {
		return nil
	}
	if _, err := tx.Exec(`INSERT INTO friend_watchlists (friend_username, movie_title, movie_year, poster_url, date_added)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		username, movie.Title, movie.Year, poster); err != nil {
		return errors.Wrap(err, "reconcile unslugged insert")
	}
	return nil
}

// GetFriendWatchlist returns all cached movies of a friend ordered by title.
func GetFriendWatchlist(username string) []WatchlistEntry {
	return Getrows[WatchlistEntry](`SELECT id, friend_username, movie_title, movie_year, letterboxd_slug, tmdb_id, poster_url, date_added
		FROM friend_watchlists WHERE friend_username = ? ORDER BY movie_title, movie_year`, username)
}

// CountFriendWatchlist returns the number of cached movies of a friend.
func CountFriendWatchlist(username string) int {
	return Getdatarow[int]("SELECT COUNT(*) FROM friend_watchlists WHERE friend_username = ?", username)
}

// AttachTmdbID stores the resolved tmdb id on a cached watchlist row.
func AttachTmdbID(username, slug string, tmdbid int) error {
	return ExecN("UPDATE friend_watchlists SET tmdb_id = ? WHERE friend_username = ? AND letterboxd_slug = ?", tmdbid, username, slug)
}

// AttachTmdbIDBySlug stores the resolved tmdb id on every cached row with
// the given slug. The slug identifies the same film across all users.
func AttachTmdbIDBySlug(slug string, tmdbid int) error {
	return ExecN("UPDATE friend_watchlists SET tmdb_id = ? WHERE letterboxd_slug = ?", tmdbid, slug)
}

// GetStaleFriends returns the usernames whose last completed sync is older
// than maxagehours or who never completed one.
func GetStaleFriends(maxagehours int) []string {
	return Getrows[string](`SELECT f.username FROM friends f
		LEFT JOIN friend_sync_status s ON s.friend_username = f.username
		WHERE s.friend_username IS NULL
			OR s.sync_status != 'completed'
			OR s.last_sync_timestamp IS NULL
			OR s.last_sync_timestamp < datetime('now', ?)
		ORDER BY f.username`, "-"+strconv.Itoa(maxagehours)+" hours")
}

// SetSyncInfo stores an application-level key/value pair.
func SetSyncInfo(key, value string) error {
	return ExecN(`INSERT INTO sync_info (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, value)
}

// GetSyncInfo reads an application-level key/value pair.
func GetSyncInfo(key string) (string, bool) {
	row, found := Getrowdata[struct {
		Value sql.NullString `db:"value"`
	}]("SELECT value FROM sync_info WHERE key = ?", key)
	if !found {
		return "", false
	}
	return row.Value.String, true
}
