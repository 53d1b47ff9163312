package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Fenrix23/watchlist_compare/comparer"
	"github.com/Fenrix23/watchlist_compare/config"
	"github.com/Fenrix23/watchlist_compare/database"
	"github.com/Fenrix23/watchlist_compare/letterboxd"
	"github.com/Fenrix23/watchlist_compare/logger"
	"github.com/Fenrix23/watchlist_compare/metadata"
)

// Server bundles the components the HTTP routes dispatch into.
type Server struct {
	Scraper  *letterboxd.Scraper
	Pipeline *comparer.Pipeline
	Metadata *metadata.Service
}

// checkAPIKey rejects requests without the configured api key. The key is
// accepted as the apikey query parameter or the X-Api-Key header. An empty
// configured key disables the check.
func checkAPIKey(ctx *gin.Context) {
	want := config.GetSettingsGeneral().WebAPIKey
	if want == "" {
		ctx.Next()
		return
	}
	if ctx.Query("apikey") == want || ctx.GetHeader("X-Api-Key") == want {
		ctx.Next()
		return
	}
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AddRoutes registers all command endpoints on the router group.
func (s *Server) AddRoutes(rg *gin.RouterGroup) {
	rg.Use(checkAPIKey)
	rg.GET("/compare", s.apiCompare)
	rg.GET("/friends", s.apiListFriends)
	rg.POST("/friends/:name", s.apiAddFriend)
	rg.DELETE("/friends/:name", s.apiDeleteFriend)
	rg.POST("/friends/import", s.apiImportFollowing)
	rg.GET("/sizes", s.apiWatchlistSizes)
	rg.GET("/fresh/:name", s.apiCacheFresh)
	rg.GET("/watchlist/:name", s.apiGetWatchlist)
	rg.POST("/watchlist/:name", s.apiSaveWatchlist)
	rg.POST("/sync/:name", s.apiSyncFriend)
	rg.GET("/status/:name", s.apiSyncStatus)
	rg.DELETE("/cache/movies", s.apiClearMovieCache)
	rg.GET("/config", s.apiGetConfig)
}

// apiCompare runs the full comparison between the primary user and the
// given friends and returns the enriched common movies. Friends default
// to all tracked friends when the parameter is absent.
func (s *Server) apiCompare(ctx *gin.Context) {
	primary := ctx.Query("user")
	if primary == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "user parameter required"})
		return
	}
	var friends []string
	if raw := ctx.Query("friends"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				friends = append(friends, name)
			}
		}
	} else {
		for _, row := range database.GetFriendsWithCounts() {
			friends = append(friends, row.Username)
		}
	}
	result, err := s.Pipeline.CompareWatchlists(ctx.Request.Context(), primary, friends)
	if err != nil {
		status := http.StatusBadGateway
		if err == letterboxd.ErrBadUsername {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	enrich := ctx.DefaultQuery("enrich", "full")
	var movies []metadata.EnrichedMovie
	switch enrich {
	case "none":
		ctx.JSON(http.StatusOK, result)
		return
	case "basic":
		movies = s.Metadata.EnhanceBasic(result.Movies)
	default:
		movies = s.Metadata.EnrichMovies(ctx.Request.Context(), result.Movies)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"primary":        result.Primary,
		"friends":        result.Friends,
		"failed_friends": result.FailedFriends,
		"stale_friends":  result.StaleFriends,
		"movies":         movies,
	})
}

func (s *Server) apiListFriends(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"friends": database.GetFriendsWithCounts()})
}

// apiAddFriend registers a friend and fills in its profile data.
func (s *Server) apiAddFriend(ctx *gin.Context) {
	name, err := letterboxd.SanitizeUsername(ctx.Param("name"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := s.Scraper.ScrapeProfile(ctx.Request.Context(), name)
	if err != nil {
		// Still track the friend; the profile fills in on the next sync.
		logger.Logtype("warn", 0).
			Err(err).
			Str("user", logger.RedactUser(name)).
			Msg("profile scrape failed on add")
		if err := database.UpsertFriend(name); err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"username": name})
		return
	}
	if err := database.UpsertFriendProfile(name, profile.DisplayName, profile.AvatarURL, profile.WatchlistCount); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"username":        name,
		"display_name":    profile.DisplayName,
		"avatar_url":      profile.AvatarURL,
		"watchlist_count": profile.WatchlistCount,
	})
}

func (s *Server) apiDeleteFriend(ctx *gin.Context) {
	name, err := letterboxd.SanitizeUsername(ctx.Param("name"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := database.DeleteFriend(name); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"deleted": name})
}

// apiImportFollowing harvests the accounts a user follows and registers
// them all as friends.
func (s *Server) apiImportFollowing(ctx *gin.Context) {
	user := ctx.Query("user")
	if user == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "user parameter required"})
		return
	}
	names, err := s.Scraper.ScrapeFollowing(ctx.Request.Context(), user)
	if err != nil {
		status := http.StatusBadGateway
		if err == letterboxd.ErrBadUsername {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	var added []string
	for _, name := range names {
		if err := database.UpsertFriend(name); err == nil {
			added = append(added, name)
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"imported": len(added), "friends": added})
}

// apiSyncFriend forces a fresh walk and reconcile for one friend.
func (s *Server) apiSyncFriend(ctx *gin.Context) {
	name, err := letterboxd.SanitizeUsername(ctx.Param("name"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := database.SetSyncStatus(name, database.SyncPending, 0, ""); err != nil {
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	movies, err := s.Scraper.WalkWatchlist(ctx.Request.Context(), name)
	if err != nil {
		_ = database.SetSyncStatus(name, database.SyncFailed, 0, err.Error())
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if err := database.ReconcileWatchlist(name, movies); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"username": name, "movies": len(movies)})
}

// apiWatchlistSizes probes the approximate remote watchlist size of the
// user and every given friend without a full walk.
func (s *Server) apiWatchlistSizes(ctx *gin.Context) {
	var names []string
	if user := ctx.Query("user"); user != "" {
		names = append(names, user)
	}
	for _, name := range strings.Split(ctx.Query("friends"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "user or friends parameter required"})
		return
	}
	type sizeEntry struct {
		Username string `json:"username"`
		Size     int    `json:"approx_size"`
		Error    string `json:"error,omitempty"`
	}
	sizes := make([]sizeEntry, 0, len(names))
	for _, name := range names {
		count, err := s.Scraper.CountWatchlist(ctx.Request.Context(), name)
		entry := sizeEntry{Username: name, Size: count}
		if err != nil {
			entry.Error = err.Error()
		}
		sizes = append(sizes, entry)
	}
	ctx.JSON(http.StatusOK, gin.H{"sizes": sizes})
}

// apiCacheFresh answers whether a cached watchlist would be served
// without a re-scrape, optionally under a caller-supplied maximum age.
func (s *Server) apiCacheFresh(ctx *gin.Context) {
	name, err := letterboxd.SanitizeUsername(ctx.Param("name"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var maxage time.Duration
	if raw := ctx.Query("max_age_hours"); raw != "" {
		hours, perr := strconv.Atoi(raw)
		if perr != nil || hours <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid max_age_hours"})
			return
		}
		maxage = time.Duration(hours) * time.Hour
	}
	policy := *s.Pipeline.Policy
	if maxage != 0 {
		policy.MaxAge = maxage
	}
	ctx.JSON(http.StatusOK, gin.H{"username": name, "fresh": policy.IsFresh(ctx.Request.Context(), name)})
}

func (s *Server) apiGetWatchlist(ctx *gin.Context) {
	name, err := letterboxd.SanitizeUsername(ctx.Param("name"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"username": name, "movies": database.GetFriendWatchlist(name)})
}

// apiSaveWatchlist writes a caller-supplied watchlist straight into the
// cache, bypassing the scraper.
func (s *Server) apiSaveWatchlist(ctx *gin.Context) {
	name, err := letterboxd.SanitizeUsername(ctx.Param("name"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var payload []struct {
		Title     string `json:"title" binding:"required"`
		Year      int    `json:"year"`
		Slug      string `json:"letterboxd_slug"`
		PosterURL string `json:"poster_url"`
	}
	if err := ctx.ShouldBindJSON(&payload); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	movies := make([]database.ScrapedMovie, 0, len(payload))
	for idx := range payload {
		movies = append(movies, database.ScrapedMovie{
			Title:     payload[idx].Title,
			Year:      payload[idx].Year,
			Slug:      payload[idx].Slug,
			PosterURL: payload[idx].PosterURL,
		})
	}
	if err := database.ReconcileWatchlist(name, movies); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"username": name, "movies": len(movies)})
}

func (s *Server) apiSyncStatus(ctx *gin.Context) {
	name, err := letterboxd.SanitizeUsername(ctx.Param("name"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, found := database.GetSyncStatus(name)
	if !found {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no sync recorded"})
		return
	}
	ctx.JSON(http.StatusOK, status)
}

func (s *Server) apiClearMovieCache(ctx *gin.Context) {
	if err := database.ClearMovieCache(); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"cleared": true})
}

// apiGetConfig exposes the active settings minus secrets.
func (s *Server) apiGetConfig(ctx *gin.Context) {
	general := config.GetSettingsGeneral()
	general.WebAPIKey = ""
	ctx.JSON(http.StatusOK, gin.H{"general": general})
}
