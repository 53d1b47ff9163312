package database

import (
	"database/sql"

	"github.com/pkg/errors"
)

// SyncStatus is the state of a friend's watchlist cache. The value set is
// closed; unknown strings never enter the database.
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

var ErrBadSyncTransition = errors.New("invalid sync status transition")

// Valid reports whether s is one of the known states.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncCompleted, SyncFailed:
		return true
	}
	return false
}

// canTransition enforces the allowed state machine: pending may move to
// completed or failed, and any terminal state may restart at pending.
func canTransition(from, to SyncStatus) bool {
	if from == "" {
		return to == SyncPending
	}
	switch from {
	case SyncPending:
		// pending -> pending covers a restarted sync after a crash
		return to == SyncCompleted || to == SyncFailed || to == SyncPending
	case SyncCompleted, SyncFailed:
		return to == SyncPending
	}
	return false
}

// FriendSyncStatus is the persisted sync state of one friend.
type FriendSyncStatus struct {
	FriendUsername string         `db:"friend_username"`
	LastSync       sql.NullTime   `db:"last_sync_timestamp"`
	TotalMovies    int            `db:"total_movies"`
	Status         SyncStatus     `db:"sync_status"`
	LastError      sql.NullString `db:"last_error"`
}

// GetSyncStatus returns the sync row for a friend.
func GetSyncStatus(username string) (FriendSyncStatus, bool) {
	return Getrowdata[FriendSyncStatus]("SELECT friend_username, last_sync_timestamp, total_movies, sync_status, last_error FROM friend_sync_status WHERE friend_username = ?", username)
}

// SetSyncStatus writes the sync state of a friend, validating the value
// and the transition from the currently stored state. The timestamp is
// only touched when a sync run finishes (completed or failed). The error
// text must already be free of user identifying data.
func SetSyncStatus(username string, status SyncStatus, totalmovies int, lasterr string) error {
	if !status.Valid() {
		return errors.Errorf("unknown sync status %q", status)
	}
	cur, found := GetSyncStatus(username)
	var from SyncStatus
	if found {
		from = cur.Status
	}
	if !canTransition(from, status) {
		return errors.Wrapf(ErrBadSyncTransition, "%s -> %s", from, status)
	}
	errtext := sql.NullString{String: lasterr, Valid: lasterr != ""}
	if status == SyncPending {
		return ExecN(`INSERT INTO friend_sync_status (friend_username, total_movies, sync_status, last_error)
			VALUES (?, ?, ?, NULL)
			ON CONFLICT(friend_username) DO UPDATE SET
				total_movies = excluded.total_movies,
				sync_status = excluded.sync_status,
				last_error = NULL`,
			username, totalmovies, status)
	}
	return ExecN(`INSERT INTO friend_sync_status (friend_username, last_sync_timestamp, total_movies, sync_status, last_error)
		VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?)
		ON CONFLICT(friend_username) DO UPDATE SET
			last_sync_timestamp = CURRENT_TIMESTAMP,
			total_movies = excluded.total_movies,
			sync_status = excluded.sync_status,
			last_error = excluded.last_error`,
		username, totalmovies, status, errtext)
}
