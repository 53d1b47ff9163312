package letterboxd

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// siteBaseURL is pinned; user input only ever forms path segments. A
// variable so tests can point the scraper at a local server.
var siteBaseURL = "https://letterboxd.com"

// usernameRE is the allow-list for account names. Anything else is rejected
// before a single request is made.
var usernameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

var ErrBadUsername = errors.New("invalid username")

// reservedPaths are site sections that look like profile links but are not
// accounts. Used when harvesting usernames from following pages.
var reservedPaths = map[string]struct{}{
	"films": {}, "lists": {}, "members": {}, "journal": {}, "search": {},
	"settings": {}, "activity": {}, "about": {}, "pro": {}, "welcome": {},
	"film": {}, "actor": {}, "director": {}, "tag": {}, "legal": {},
	"contact": {}, "api": {}, "apps": {}, "help": {}, "upgraded": {},
}

// SanitizeUsername validates a user-supplied account name against the
// allow-list. The name is returned unchanged on success.
func SanitizeUsername(username string) (string, error) {
	if !usernameRE.MatchString(username) {
		return "", ErrBadUsername
	}
	return username, nil
}

// IsReservedPath reports whether a path segment is a site section rather
// than an account name.
func IsReservedPath(segment string) bool {
	_, ok := reservedPaths[segment]
	return ok
}

// WatchlistURL builds the watchlist page URL for a validated username.
// Page 1 has no page suffix.
func WatchlistURL(username string, page int) string {
	if page <= 1 {
		return siteBaseURL + "/" + username + "/watchlist/"
	}
	return siteBaseURL + "/" + username + "/watchlist/page/" + strconv.Itoa(page) + "/"
}

// ProfileURL builds the profile page URL for a validated username.
func ProfileURL(username string) string {
	return siteBaseURL + "/" + username + "/"
}

// FollowingURL builds the following page URL for a validated username.
func FollowingURL(username string, page int) string {
	if page <= 1 {
		return siteBaseURL + "/" + username + "/following/"
	}
	return siteBaseURL + "/" + username + "/following/page/" + strconv.Itoa(page) + "/"
}

// FilmURL builds the deep link to a film page from its slug.
func FilmURL(slug string) string {
	return siteBaseURL + "/film/" + slug + "/"
}
