package database

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Friend is one tracked account whose watchlist gets cached.
type Friend struct {
	ID             uint           `db:"id"`
	Username       string         `db:"username"`
	DisplayName    sql.NullString `db:"display_name"`
	AvatarURL      sql.NullString `db:"avatar_url"`
	WatchlistCount int            `db:"watchlist_count"`
	LastUpdated    sql.NullTime   `db:"last_updated"`
}

// FriendWithCount joins a friend with its sync state for listings.
type FriendWithCount struct {
	Username       string         `db:"username"`
	DisplayName    sql.NullString `db:"display_name"`
	WatchlistCount int            `db:"watchlist_count"`
	CachedMovies   int            `db:"cached_movies"`
	SyncStatus     sql.NullString `db:"sync_status"`
	LastSync       sql.NullTime   `db:"last_sync_timestamp"`
}

// UpsertFriend records a friend by username, keeping existing profile data.
func UpsertFriend(username string) error {
	return ExecN("INSERT INTO friends (username) VALUES (?) ON CONFLICT(username) DO NOTHING", username)
}

// UpsertFriendProfile stores the scraped display name, avatar and declared
// watchlist count of a friend.
func UpsertFriendProfile(username, displayname, avatarurl string, watchlistcount int) error {
	return ExecN(`INSERT INTO friends (username, display_name, avatar_url, watchlist_count, last_updated)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(username) DO UPDATE SET
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			watchlist_count = excluded.watchlist_count,
			last_updated = CURRENT_TIMESTAMP`,
		username, displayname, sql.NullString{String: avatarurl, Valid: avatarurl != ""}, watchlistcount)
}

// GetFriend returns the friend row for a username.
func GetFriend(username string) (Friend, bool) {
	return Getrowdata[Friend]("SELECT id, username, display_name, avatar_url, watchlist_count, last_updated FROM friends WHERE username = ? COLLATE NOCASE", username)
}

// GetFriendsWithCounts lists all friends with their cached movie counts
// and sync state, ordered by username.
func GetFriendsWithCounts() []FriendWithCount {
	return Getrows[FriendWithCount](`SELECT f.username, f.display_name, f.watchlist_count,
			(SELECT COUNT(*) FROM friend_watchlists w WHERE w.friend_username = f.username) as cached_movies,
			s.sync_status, s.last_sync_timestamp
		FROM friends f
		LEFT JOIN friend_sync_status s ON s.friend_username = f.username
		ORDER BY f.username`)
}

// DeleteFriend removes a friend and all cached rows belonging to it.
func DeleteFriend(username string) error {
	return WithTx(func(tx *sqlx.Tx) error {
		for _, q := range []string{
			"DELETE FROM friend_watchlists WHERE friend_username = ?",
			"DELETE FROM friend_sync_status WHERE friend_username = ?",
			"DELETE FROM friends WHERE username = ?",
		} {
			if _, err := tx.Exec(q, username); err != nil {
				return err
			}
		}
		return nil
	})
}
