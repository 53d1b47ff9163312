package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Fenrix23/watchlist_compare/api"
	"github.com/Fenrix23/watchlist_compare/apiexternal"
	"github.com/Fenrix23/watchlist_compare/comparer"
	"github.com/Fenrix23/watchlist_compare/config"
	"github.com/Fenrix23/watchlist_compare/database"
	"github.com/Fenrix23/watchlist_compare/letterboxd"
	"github.com/Fenrix23/watchlist_compare/logger"
	"github.com/Fenrix23/watchlist_compare/metadata"
	"github.com/Fenrix23/watchlist_compare/scheduler"
	"github.com/Fenrix23/watchlist_compare/slidingwindow"
)

func main() {
	configfile := flag.String("config", config.Configfile, "path to the configuration file")
	flag.Parse()

	if err := config.LoadCfgFile(*configfile); err != nil {
		logger.Logtype("fatal", 0).Err(err).Msg("loading configuration failed")
	}
	general := config.GetSettingsGeneral()
	logger.InitLogger(logger.Config{
		LogLevel:      general.LogLevel,
		LogFilePath:   general.LogFilePath,
		LogFileSize:   general.LogFileSize,
		LogFileCount:  general.LogFileCount,
		LogCompress:   general.LogCompress,
		LogColorize:   general.LogColorize,
		LogToFileOnly: general.LogToFileOnly,
	})

	if err := database.InitDB(general.DBFile); err != nil {
		logger.Logtype("fatal", 0).Err(err).Msg("opening database failed")
	}
	if err := database.UpgradeDB(); err != nil {
		logger.Logtype("fatal", 0).Err(err).Msg("database migration failed")
	}
	defer database.CloseDB()

	// One page fetch per second towards the scrape target; the walker adds
	// its own politeness delay on top.
	scrapeLimiter := slidingwindow.NewLimiter(time.Second, 1)
	scrapeClient := apiexternal.NewClient("letterboxd", &scrapeLimiter, 30)
	scraper := letterboxd.NewScraper(&scrapeClient, general.ScrapeDelayMs)

	tmdbcfg := config.GetSettingsTmdb()
	tmdb := apiexternal.NewTmdbClient(tmdbcfg.APIKey, tmdbcfg.LimitSeconds, tmdbcfg.LimitCalls, tmdbcfg.TimeoutSeconds)

	pipeline := &comparer.Pipeline{
		Scraper: scraper,
		Policy: &comparer.FreshnessPolicy{
			Prober:                  scraper,
			MaxAge:                  time.Duration(general.CacheMaxAgeHours) * time.Hour,
			AssumeFreshOnProbeError: !general.ForceRescrapeOnProbeError,
		},
		Concurrency: general.FriendFetchConcurrency,
	}

	sched := scheduler.New(scraper)
	if err := sched.Start(); err != nil {
		logger.Logtype("fatal", 0).Err(err).Msg("starting scheduler failed")
	}
	defer sched.Stop()

	server := &api.Server{
		Scraper:  scraper,
		Pipeline: pipeline,
		Metadata: metadata.NewService(tmdb),
	}

	if !strings.EqualFold(general.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	server.AddRoutes(router.Group("/api"))

	httpserver := &http.Server{
		Addr:              general.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Logtype("info", 0).
			Str("addr", general.ListenAddr).
			Msg("listening")
		if err := httpserver.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logtype("fatal", 0).Err(err).Msg("http server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Logtype("info", 0).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpserver.Shutdown(shutdownCtx); err != nil {
		logger.Logtype("error", 0).Err(err).Msg("shutdown incomplete")
	}
}
