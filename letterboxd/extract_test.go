package letterboxd

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parsePage(t *testing.T, markup string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestExtractMoviesPosterGrid(t *testing.T) {
	doc := parsePage(t, `<ul>
		<li><div class="really lazy-load film-poster" data-film-slug="inception">
			<img alt="Inception (2010)" src="//a.ltrbxd.com/resized/inception.jpg"></div></li>
		<li><div class="film-poster" data-film-slug="the-matrix">
			<img alt="The Matrix (1999)" src="/resized/matrix.jpg"></div></li>
		<li><div class="film-poster" data-film-slug="dupe">
			<img alt="Inception (2010)" src="x.jpg"></div></li>
		<li><div class="film-poster" data-film-slug="no-year">
			<img alt="Some Short" src="https://a.ltrbxd.com/short.jpg"></div></li>
	</ul>`)

	movies := ExtractMovies(doc)
	if len(movies) != 3 {
		t.Fatalf("got %d movies, want 3 after dedupe", len(movies))
	}
	// Sorted by title.
	if movies[0].Title != "Inception" || movies[0].Year != 2010 || movies[0].Slug != "inception" {
		t.Errorf("unexpected first movie: %+v", movies[0])
	}
	if movies[0].PosterURL != "https://a.ltrbxd.com/resized/inception.jpg" {
		t.Errorf("protocol relative poster not normalized: %q", movies[0].PosterURL)
	}
	if movies[1].Title != "Some Short" || movies[1].Year != 0 {
		t.Errorf("unexpected second movie: %+v", movies[1])
	}
	if movies[2].PosterURL != "https://letterboxd.com/resized/matrix.jpg" {
		t.Errorf("site relative poster not normalized: %q", movies[2].PosterURL)
	}
}

func TestExtractMoviesTargetLinkFallback(t *testing.T) {
	doc := parsePage(t, `<div>
		<a data-target-link="/film/oldboy/" href="#">Oldboy (2003)</a>
		<a data-target-link="/film/parasite/" href="#"><img alt="Parasite (2019)" src="/p.jpg"></a>
		<a data-target-link="/lists/whatever/" href="#">Not a film</a>
	</div>`)

	movies := ExtractMovies(doc)
	if len(movies) != 2 {
		t.Fatalf("got %d movies, want 2 from fallback", len(movies))
	}
	if movies[0].Title != "Oldboy" || movies[0].Year != 2003 || movies[0].Slug != "oldboy" {
		t.Errorf("unexpected movie: %+v", movies[0])
	}
	if movies[1].Slug != "parasite" || movies[1].Year != 2019 {
		t.Errorf("unexpected movie: %+v", movies[1])
	}
}

func TestExtractMoviesPrefersPosters(t *testing.T) {
	doc := parsePage(t, `<div>
		<div class="film-poster" data-film-slug="primary"><img alt="Primary (2020)" src="p.jpg"></div>
		<a data-target-link="/film/fallback/" href="#">Fallback (2021)</a>
	</div>`)
	movies := ExtractMovies(doc)
	if len(movies) != 1 || movies[0].Slug != "primary" {
		t.Fatalf("fallback ran although posters matched: %+v", movies)
	}
}

func TestSplitTitleYear(t *testing.T) {
	tests := []struct {
		in        string
		wantTitle string
		wantYear  int
	}{
		{"Inception (2010)", "Inception", 2010},
		{"Inception", "Inception", 0},
		{"1917 (2019)", "1917", 2019},
		{"Movie (1899)", "Movie (1899)", 0},
		{"Movie (2031)", "Movie (2031)", 0},
		{"(2010)", "(2010)", 0},
		{"  Padded (2000)  ", "Padded", 2000},
	}
	for _, tt := range tests {
		title, year := splitTitleYear(tt.in)
		if title != tt.wantTitle || year != tt.wantYear {
			t.Errorf("splitTitleYear(%q) = %q, %d; want %q, %d", tt.in, title, year, tt.wantTitle, tt.wantYear)
		}
	}
}

func TestHasNextPage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"paginate link", `<a class="next" href="/dave/watchlist/page/2/">Next</a> <div class="paginate-next"></div>`, true},
		{"rel next", `<link rel="next" href="/dave/watchlist/page/2/">`, true},
		{"single weak hint", `<p>What happens next?</p>`, false},
		{"empty", ``, false},
	}
	for _, tt := range tests {
		if got := HasNextPage(tt.in); got != tt.want {
			t.Errorf("%s: HasNextPage = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSanitizeUsername(t *testing.T) {
	valid := []string{"dave", "Dave_23", "a", "name-with-dash", strings.Repeat("x", 32)}
	for _, name := range valid {
		if _, err := SanitizeUsername(name); err != nil {
			t.Errorf("SanitizeUsername(%q) unexpected error %v", name, err)
		}
	}
	invalid := []string{"", "bad/name", "has space", "semi;colon", "../../etc", strings.Repeat("x", 33), "tick'tick"}
	for _, name := range invalid {
		if _, err := SanitizeUsername(name); err == nil {
			t.Errorf("SanitizeUsername(%q) accepted, want rejection", name)
		}
	}
}

func TestWatchlistURL(t *testing.T) {
	if got := WatchlistURL("dave", 1); got != "https://letterboxd.com/dave/watchlist/" {
		t.Errorf("page 1 url %q", got)
	}
	if got := WatchlistURL("dave", 3); got != "https://letterboxd.com/dave/watchlist/page/3/" {
		t.Errorf("page 3 url %q", got)
	}
}

func TestSlugFromFilmPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/film/oldboy/", "oldboy"},
		{"/film/oldboy", "oldboy"},
		{"/dave/film/oldboy/", "oldboy"},
		{"/lists/top/", ""},
	}
	for _, tt := range tests {
		if got := slugFromFilmPath(tt.in); got != tt.want {
			t.Errorf("slugFromFilmPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
