package letterboxd

import (
	"context"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/pkg/errors"

	"github.com/Fenrix23/watchlist_compare/logger"
)

// Profile is the scraped public profile of an account.
type Profile struct {
	Username       string
	DisplayName    string
	AvatarURL      string
	WatchlistCount int
}

// badgeSuffixes are membership badges that leak into the page title.
var badgeSuffixes = []string{" Pro", " Patron", " HQ"}

func stripBadges(name string) string {
	name = strings.TrimSpace(name)
	for changed := true; changed; {
		changed = false
		for _, suffix := range badgeSuffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSpace(strings.TrimSuffix(name, suffix))
				changed = true
			}
		}
	}
	return name
}

// parseCount reads the leading integer out of link texts like
// "1,234 films". Commas and surrounding words are ignored.
func parseCount(text string) int {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	end := 0
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	count, err := strconv.Atoi(text[:end])
	if err != nil {
		return 0
	}
	return count
}

// ScrapeProfile fetches an account's public profile page and returns the
// display name (badges stripped) and the declared watchlist size.
func (s *Scraper) ScrapeProfile(ctx context.Context, username string) (Profile, error) {
	username, err := SanitizeUsername(username)
	if err != nil {
		return Profile{}, err
	}
	tag := logger.RedactUser(username)
	doc, _, err := s.fetchPage(ctx, ProfileURL(username))
	if err != nil {
		return Profile{}, errors.Wrapf(err, "profile of %s", tag)
	}
	profile := Profile{Username: username, DisplayName: username}
	if node := htmlquery.FindOne(doc, "//h1[contains(@class, 'title-1')]"); node != nil {
		if name := stripBadges(htmlquery.InnerText(node)); name != "" {
			profile.DisplayName = name
		}
	}
	if node := htmlquery.FindOne(doc, "//span[contains(@class, 'avatar')]//img"); node != nil {
		profile.AvatarURL = normalizePosterURL(htmlquery.SelectAttr(node, "src"))
	}
	if node := htmlquery.FindOne(doc, "//a[contains(@href, '/watchlist/')]"); node != nil {
		profile.WatchlistCount = parseCount(htmlquery.InnerText(node))
	}
	return profile, nil
}

// ScrapeFollowing harvests the usernames an account follows. Links to site
// sections, the account itself and names failing the allow-list are
// skipped. Pagination follows the same heuristic as the watchlist walk.
func (s *Scraper) ScrapeFollowing(ctx context.Context, username string) ([]string, error) {
	username, err := SanitizeUsername(username)
	if err != nil {
		return nil, err
	}
	tag := logger.RedactUser(username)
	var found []string
	seen := make(map[string]struct{})
	for page := 1; page <= probeMaxPages; page++ {
		if page > 1 {
			if err := s.pause(ctx); err != nil {
				return nil, err
			}
		}
		doc, raw, err := s.fetchPage(ctx, FollowingURL(username, page))
		if err != nil {
			return nil, errors.Wrapf(err, "following page %d of %s", page, tag)
		}
		var pagecount int
		for _, node := range htmlquery.Find(doc, "//a[contains(@class, 'avatar')]") {
			name := usernameFromHref(htmlquery.SelectAttr(node, "href"))
			if name == "" || strings.EqualFold(name, username) || IsReservedPath(strings.ToLower(name)) {
				continue
			}
			if !usernameRE.MatchString(name) {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			found = append(found, name)
			pagecount++
		}
		if pagecount == 0 || !HasNextPage(raw) {
			break
		}
	}
	return found, nil
}

// usernameFromHref extracts the account name from a single segment
// profile path like "/dave/".
func usernameFromHref(href string) string {
	href = strings.TrimPrefix(href, siteBaseURL)
	href = strings.Trim(href, "/")
	if href == "" || strings.ContainsRune(href, '/') {
		return ""
	}
	return href
}
