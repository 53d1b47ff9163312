package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Fenrix23/watchlist_compare/comparer"
	"github.com/Fenrix23/watchlist_compare/config"
	"github.com/Fenrix23/watchlist_compare/database"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := database.InitDB(":memory:"); err != nil {
		panic(err)
	}
	if err := database.UpgradeDB(); err != nil {
		panic(err)
	}
	code := m.Run()
	database.CloseDB()
	os.Exit(code)
}

func testRouter() *gin.Engine {
	router := gin.New()
	server := &Server{
		Pipeline: &comparer.Pipeline{
			Policy:      &comparer.FreshnessPolicy{MaxAge: 24 * time.Hour},
			Concurrency: 1,
		},
	}
	server.AddRoutes(router.Group("/api"))
	return router
}

func withAPIKey(t *testing.T, key string) {
	t.Helper()
	general := config.GetSettingsGeneral()
	prev := general.WebAPIKey
	general.WebAPIKey = key
	config.SetSettingsGeneral(general)
	t.Cleanup(func() {
		general := config.GetSettingsGeneral()
		general.WebAPIKey = prev
		config.SetSettingsGeneral(general)
	})
}

func TestAPIKeyGuard(t *testing.T) {
	withAPIKey(t, "sekrit")
	router := testRouter()

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"no key", "/api/friends", "", http.StatusUnauthorized},
		{"wrong key", "/api/friends?apikey=wrong", "", http.StatusUnauthorized},
		{"query key", "/api/friends?apikey=sekrit", "", http.StatusOK},
		{"header key", "/api/friends", "sekrit", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.target, nil)
		if tt.header != "" {
			req.Header.Set("X-Api-Key", tt.header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s: got status %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestAPIKeyGuardDisabled(t *testing.T) {
	withAPIKey(t, "")
	router := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d without a configured key, want 200", rec.Code)
	}
}

func TestCompareRequiresUser(t *testing.T) {
	withAPIKey(t, "")
	router := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/compare", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestAddFriendRejectsBadName(t *testing.T) {
	withAPIKey(t, "")
	router := testRouter()
	req := httptest.NewRequest(http.MethodPost, "/api/friends/bad%2Fname", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400 for an invalid name", rec.Code)
	}
}

func TestSyncStatusNotFound(t *testing.T) {
	withAPIKey(t, "")
	router := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/status/neversynced", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", rec.Code)
	}
}

func TestSaveAndGetWatchlist(t *testing.T) {
	withAPIKey(t, "")
	router := testRouter()

	body := `[{"title": "Inception", "year": 2010, "letterboxd_slug": "inception"},
		{"title": "Oldboy", "year": 2003, "letterboxd_slug": "oldboy"}]`
	req := httptest.NewRequest(http.MethodPost, "/api/watchlist/savetest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/watchlist/savetest", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	for _, title := range []string{"Inception", "Oldboy"} {
		if !strings.Contains(rec.Body.String(), title) {
			t.Errorf("watchlist payload misses %q: %s", title, rec.Body.String())
		}
	}
}

func TestCacheFreshBadMaxAge(t *testing.T) {
	withAPIKey(t, "")
	router := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/fresh/someone?max_age_hours=banana", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestListFriendsPayload(t *testing.T) {
	withAPIKey(t, "")
	if err := database.UpsertFriendProfile("api_test_friend", "API Friend", "", 5); err != nil {
		t.Fatal(err)
	}
	router := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/friends", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_test_friend") {
		t.Errorf("friend missing from payload: %s", rec.Body.String())
	}
}
