package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCfgFileMissingUsesDefaults(t *testing.T) {
	if err := LoadCfgFile(filepath.Join(t.TempDir(), "nope.toml")); err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	general := GetSettingsGeneral()
	if general.ListenAddr != ":9090" {
		t.Errorf("listen addr %q", general.ListenAddr)
	}
	if general.CacheMaxAgeHours != 24 || general.FriendFetchConcurrency != 4 || general.ScrapeDelayMs != 500 {
		t.Errorf("defaults not applied: %+v", general)
	}
	tmdb := GetSettingsTmdb()
	if tmdb.LimitCalls != 30 || tmdb.LimitSeconds != 1 || tmdb.TimeoutSeconds != 10 {
		t.Errorf("tmdb defaults not applied: %+v", tmdb)
	}
}

func TestLoadCfgFileParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[general]
log_level = "debug"
listen_addr = ":8123"
db_file = "/tmp/test.db"
scrape_delay_ms = 250
force_rescrape_on_probe_error = true

[tmdb]
api_key = "abc123"
limit_calls = 10
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadCfgFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	general := GetSettingsGeneral()
	if general.LogLevel != "debug" || general.ListenAddr != ":8123" || general.ScrapeDelayMs != 250 {
		t.Errorf("parsed values wrong: %+v", general)
	}
	if !general.ForceRescrapeOnProbeError {
		t.Error("force_rescrape_on_probe_error not parsed")
	}
	if general.CacheMaxAgeHours != 24 {
		t.Error("unset value did not default")
	}
	if GetSettingsTmdb().APIKey != "abc123" || GetSettingsTmdb().LimitCalls != 10 {
		t.Errorf("tmdb values wrong: %+v", GetSettingsTmdb())
	}
}

func TestLoadCfgFileRejectsBadToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := LoadCfgFile(path); err == nil {
		t.Error("invalid toml accepted")
	}
}
