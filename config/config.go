package config

import (
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

const Configfile = "./config/config.toml"

// GeneralConfig holds the application-wide settings.
type GeneralConfig struct {
	LogLevel      string `toml:"log_level"`
	LogFilePath   string `toml:"log_file_path"`
	LogFileSize   int    `toml:"log_file_size"`
	LogFileCount  uint8  `toml:"log_file_count"`
	LogCompress   bool   `toml:"log_compress"`
	LogColorize   bool   `toml:"log_colorize"`
	LogToFileOnly bool   `toml:"log_to_file_only"`

	// ListenAddr is the address the command API binds to.
	ListenAddr string `toml:"listen_addr"`
	// WebAPIKey guards the command API endpoints.
	WebAPIKey string `toml:"web_api_key"`

	// DBFile is the sqlite database file holding all caches.
	DBFile string `toml:"db_file"`

	// ScrapeDelayMs is the politeness delay between watchlist pages.
	ScrapeDelayMs int `toml:"scrape_delay_ms"`
	// CacheMaxAgeHours is the default maximum age before a cached
	// watchlist must be re-scraped.
	CacheMaxAgeHours int `toml:"cache_max_age_hours"`
	// ForceRescrapeOnProbeError flips the default availability trade-off:
	// normally a failed remote count probe keeps serving the cache; with
	// this set, probe failures force a re-scrape instead.
	ForceRescrapeOnProbeError bool `toml:"force_rescrape_on_probe_error"`
	// FriendFetchConcurrency caps parallel friend watchlist walks.
	FriendFetchConcurrency int `toml:"friend_fetch_concurrency"`
	// RefreshCron re-syncs stale watchlists in the background when set.
	RefreshCron string `toml:"refresh_cron"`
}

// TmdbConfig holds the external metadata API settings.
type TmdbConfig struct {
	APIKey string `toml:"api_key"`
	// LimitCalls per LimitSeconds outbound requests.
	LimitCalls     int    `toml:"limit_calls"`
	LimitSeconds   uint8  `toml:"limit_seconds"`
	TimeoutSeconds uint16 `toml:"timeout_seconds"`
}

// MainConfig is the root of the TOML configuration file.
type MainConfig struct {
	General GeneralConfig `toml:"general"`
	Tmdb    TmdbConfig    `toml:"tmdb"`
}

var (
	settingsMu sync.RWMutex
	settings   MainConfig
)

func setDefaults(c *MainConfig) {
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
	if c.General.ListenAddr == "" {
		c.General.ListenAddr = ":9090"
	}
	if c.General.DBFile == "" {
		c.General.DBFile = "./databases/watchlists.db"
	}
	if c.General.ScrapeDelayMs == 0 {
		c.General.ScrapeDelayMs = 500
	}
	if c.General.CacheMaxAgeHours == 0 {
		c.General.CacheMaxAgeHours = 24
	}
	if c.General.FriendFetchConcurrency == 0 {
		c.General.FriendFetchConcurrency = 4
	}
	if c.Tmdb.LimitCalls == 0 {
		c.Tmdb.LimitCalls = 30
	}
	if c.Tmdb.LimitSeconds == 0 {
		c.Tmdb.LimitSeconds = 1
	}
	if c.Tmdb.TimeoutSeconds == 0 {
		c.Tmdb.TimeoutSeconds = 10
	}
}

// LoadCfgFile reads and decodes the configuration file into the global
// settings snapshot. A missing file is not an error: defaults apply.
func LoadCfgFile(path string) error {
	if path == "" {
		path = Configfile
	}
	var cfg MainConfig
	content, err := os.Open(path)
	if err == nil {
		defer content.Close()
		if err := toml.NewDecoder(content).Decode(&cfg); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	setDefaults(&cfg)

	settingsMu.Lock()
	settings = cfg
	settingsMu.Unlock()
	return nil
}

// GetSettingsGeneral returns the current general settings snapshot.
func GetSettingsGeneral() GeneralConfig {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings.General
}

// GetSettingsTmdb returns the current TMDB settings snapshot.
func GetSettingsTmdb() TmdbConfig {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings.Tmdb
}

// SetSettingsGeneral replaces the general settings snapshot. Used by tests
// and the config reload endpoint.
func SetSettingsGeneral(g GeneralConfig) {
	settingsMu.Lock()
	settings.General = g
	settingsMu.Unlock()
}
