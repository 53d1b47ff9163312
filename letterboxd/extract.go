package letterboxd

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/Fenrix23/watchlist_compare/database"
)

// yearInTitleRE captures a trailing "(YYYY)" in an alt text.
var yearInTitleRE = regexp.MustCompile(`\((\d{4})\)\s*$`)

// splitTitleYear separates "Title (YYYY)" alt texts into title and year.
// Years outside 1900-2030 stay part of the title.
func splitTitleYear(alt string) (string, int) {
	alt = strings.TrimSpace(alt)
	m := yearInTitleRE.FindStringSubmatch(alt)
	if m == nil {
		return alt, 0
	}
	year, err := strconv.Atoi(m[1])
	if err != nil || year < 1900 || year > 2030 {
		return alt, 0
	}
	title := strings.TrimSpace(strings.TrimSuffix(alt, m[0]))
	if title == "" {
		return alt, 0
	}
	return title, year
}

// normalizePosterURL makes scraped image sources absolute. Protocol
// relative and site relative forms both occur in the markup.
func normalizePosterURL(src string) string {
	switch {
	case src == "":
		return ""
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "/"):
		return siteBaseURL + src
	}
	return src
}

// slugFromFilmPath pulls the slug out of a "/film/<slug>/" path.
func slugFromFilmPath(path string) string {
	idx := strings.Index(path, "/film/")
	if idx < 0 {
		return ""
	}
	rest := path[idx+len("/film/"):]
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// ExtractMovies pulls the movies out of one watchlist page. Two strategies
// run in order: the poster grid (data-film-slug) and, when that yields
// nothing, anchors whose data-target-link points at a film page. The result
// is deduplicated on (title, year) and sorted.
func ExtractMovies(doc *html.Node) []database.ScrapedMovie {
	movies := extractFromPosters(doc)
	if len(movies) == 0 {
		movies = extractFromTargetLinks(doc)
	}
	return dedupeAndSort(movies)
}

func extractFromPosters(doc *html.Node) []database.ScrapedMovie {
	var movies []database.ScrapedMovie
	for _, node := range htmlquery.Find(doc, "//div[contains(@class, 'film-poster') and @data-film-slug]") {
		slug := htmlquery.SelectAttr(node, "data-film-slug")
		if slug == "" {
			continue
		}
		var title, poster string
		var year int
		if img := htmlquery.FindOne(node, ".//img"); img != nil {
			title, year = splitTitleYear(htmlquery.SelectAttr(img, "alt"))
			poster = htmlquery.SelectAttr(img, "src")
			if poster == "" {
				poster = htmlquery.SelectAttr(img, "data-src")
			}
		}
		if title == "" {
			continue
		}
		movies = append(movies, database.ScrapedMovie{
			Title:     title,
			Year:      year,
			Slug:      slug,
			PosterURL: normalizePosterURL(poster),
		})
	}
	return movies
}

func extractFromTargetLinks(doc *html.Node) []database.ScrapedMovie {
	var movies []database.ScrapedMovie
	for _, node := range htmlquery.Find(doc, "//a[contains(@data-target-link, '/film/')]") {
		slug := slugFromFilmPath(htmlquery.SelectAttr(node, "data-target-link"))
		if slug == "" {
			continue
		}
		var title, poster string
		var year int
		if img := htmlquery.FindOne(node, ".//img"); img != nil {
			title, year = splitTitleYear(htmlquery.SelectAttr(img, "alt"))
			poster = htmlquery.SelectAttr(img, "src")
		}
		if title == "" {
			title, year = splitTitleYear(htmlquery.InnerText(node))
		}
		if title == "" {
			continue
		}
		movies = append(movies, database.ScrapedMovie{
			Title:     title,
			Year:      year,
			Slug:      slug,
			PosterURL: normalizePosterURL(poster),
		})
	}
	return movies
}

// dedupeAndSort removes duplicate (title, year) pairs, keeping the first
// occurrence, and orders the result by title then year.
func dedupeAndSort(movies []database.ScrapedMovie) []database.ScrapedMovie {
	if len(movies) == 0 {
		return movies
	}
	seen := make(map[string]struct{}, len(movies))
	out := movies[:0]
	for idx := range movies {
		key := strings.ToLower(movies[idx].Title) + "\x00" + strconv.Itoa(movies[idx].Year)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, movies[idx])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].Year < out[j].Year
	})
	return out
}

// nextPageIndicators are markup fragments hinting at further pages. The
// heuristic requires at least two so that a stray "next" in a film title
// does not fake a pagination link.
var nextPageIndicators = []string{
	"paginate-next",
	`rel="next"`,
	"/watchlist/page/",
	"next",
	"&gt;",
	"→",
}

// HasNextPage reports whether a page's raw markup indicates another page.
func HasNextPage(rawhtml string) bool {
	lower := strings.ToLower(rawhtml)
	var hits int
	for _, indicator := range nextPageIndicators {
		if strings.Contains(lower, indicator) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}
