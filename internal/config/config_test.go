package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const testYAML = `server:
  host: "127.0.0.1"
  port: 3000
  mode: "release"
  timeout: "5s"
  session:
    cookie_name: "rental_sid"
    max_age: "12h"
    secure: true
storage:
  driver: "database"
  key_prefix: "carhire:"
database:
  driver: "postgres"
  postgres:
    host: "db.example.com"
    port: 5433
    user: "admin"
    password: "secret"
    dbname: "carhire"
    sslmode: "require"
  pool:
    max_idle_conns: 5
    max_open_conns: 50
    conn_max_lifetime: "30m"
log:
  level: "info"
  format: "json"
backend:
  base_url: "https://rentals.example.com/api/"
  timeout: "8s"
  default_language: "de"
  languages: ["en", "de", "EN"]
  catalog_ttl: "15m"
search:
  location_match: "ranked"
  session_idle_ttl: "45m"
  surfaces:
    landing:
      page_size: 9
      debounce: "300ms"
scheduler:
  enabled: true
  location_refresh: "0 */5 * * * *"
  session_sweep: "@every 1m"
  store_prune: "0 0 4 * * *"
  store_retention: "168h"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// validConfig returns a minimal config that passes Validate.
func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8080, Mode: "debug"},
		Storage: StorageConfig{Driver: StorageMemory},
		Log:     LogConfig{Level: "info", Format: "text"},
		Backend: BackendConfig{BaseURL: "http://localhost:9000/api"},
	}
}

func TestLoad_FullYAML(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 3000 || cfg.Server.Mode != "release" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.Session.CookieName != "rental_sid" || !cfg.Server.Session.Secure {
		t.Errorf("Server.Session = %+v", cfg.Server.Session)
	}
	if cfg.Storage.Driver != StorageDatabase || cfg.Storage.KeyPrefix != "carhire:" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Database.Postgres.Host != "db.example.com" || cfg.Database.Postgres.Port != 5433 {
		t.Errorf("Database.Postgres = %+v", cfg.Database.Postgres)
	}
	if cfg.Database.Pool.ConnMaxLifetime != "30m" {
		t.Errorf("Pool.ConnMaxLifetime = %q, want %q", cfg.Database.Pool.ConnMaxLifetime, "30m")
	}

	// Trailing slash is trimmed so paths can be joined verbatim.
	if cfg.Backend.BaseURL != "https://rentals.example.com/api" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.DefaultLanguage != "de" {
		t.Errorf("Backend.DefaultLanguage = %q, want %q", cfg.Backend.DefaultLanguage, "de")
	}
	if !slices.Equal(cfg.Backend.Languages, []string{"en", "de"}) {
		t.Errorf("Backend.Languages = %v, want [en de]", cfg.Backend.Languages)
	}

	if cfg.Search.LocationMatch != MatchRanked {
		t.Errorf("Search.LocationMatch = %q, want %q", cfg.Search.LocationMatch, MatchRanked)
	}
	if got := cfg.Search.Surfaces["landing"]; got.PageSize != 9 || got.Debounce != "300ms" {
		t.Errorf("Search.Surfaces[landing] = %+v", got)
	}

	if !cfg.Scheduler.Enabled || cfg.Scheduler.SessionSweep != "@every 1m" {
		t.Errorf("Scheduler = %+v", cfg.Scheduler)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APP__SERVER__PORT", "9090")
	t.Setenv("APP__LOG__LEVEL", "error")
	t.Setenv("APP__BACKEND__BASE_URL", "https://override.example.com")
	t.Setenv("APP__SEARCH__LOCATION_MATCH", "first")
	t.Setenv("APP__DATABASE__POOL__MAX_IDLE_CONNS", "20")

	cfg, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "error")
	}
	if cfg.Backend.BaseURL != "https://override.example.com" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Search.LocationMatch != MatchFirst {
		t.Errorf("Search.LocationMatch = %q, want %q", cfg.Search.LocationMatch, MatchFirst)
	}
	if cfg.Database.Pool.MaxIdleConns != 20 {
		t.Errorf("Pool.MaxIdleConns = %d, want 20", cfg.Database.Pool.MaxIdleConns)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_DefaultConfig(t *testing.T) {
	cfg, err := Load("../../configs/config.yaml")
	if err != nil {
		t.Fatalf("Load() error on project config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != StorageDatabase || cfg.Database.Driver != "sqlite" {
		t.Errorf("storage = %q/%q, want database/sqlite", cfg.Storage.Driver, cfg.Database.Driver)
	}
	wantSurfaces := map[string]SurfaceConfig{
		"listing":      {PageSize: 20, Debounce: "500ms"},
		"landing":      {PageSize: 9, Debounce: "300ms"},
		"detail":       {PageSize: 20},
		"detail_embed": {PageSize: 20, Debounce: "300ms"},
	}
	for name, want := range wantSurfaces {
		if got := cfg.Search.Surfaces[name]; got != want {
			t.Errorf("Surfaces[%s] = %+v, want %+v", name, got, want)
		}
	}
	if !slices.Equal(cfg.Backend.Languages, []string{"en", "de"}) {
		t.Errorf("Backend.Languages = %v", cfg.Backend.Languages)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if cfg.Storage.Driver != StorageMemory {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, StorageMemory)
	}
	if cfg.Backend.DefaultLanguage != "en" {
		t.Errorf("Backend.DefaultLanguage = %q, want en", cfg.Backend.DefaultLanguage)
	}
	if !slices.Equal(cfg.Backend.Languages, []string{"en"}) {
		t.Errorf("Backend.Languages = %v, want [en]", cfg.Backend.Languages)
	}
	if cfg.Search.LocationMatch != MatchFirst {
		t.Errorf("Search.LocationMatch = %q, want %q", cfg.Search.LocationMatch, MatchFirst)
	}
}

func TestValidate_DefaultLanguageIsAlwaysSupported(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.DefaultLanguage = "it"
	cfg.Backend.Languages = []string{"en", "de"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !slices.Equal(cfg.Backend.Languages, []string{"it", "en", "de"}) {
		t.Errorf("Backend.Languages = %v, want [it en de]", cfg.Backend.Languages)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid mode", func(c *Config) { c.Server.Mode = "production" }, "server.mode"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"blank host", func(c *Config) { c.Server.Host = "   " }, "server.host is required"},
		{"bad timeout", func(c *Config) { c.Server.Timeout = "soon" }, "server.timeout"},
		{"negative timeout", func(c *Config) { c.Server.Timeout = "-1s" }, "must be greater than 0"},
		{"bad session max age", func(c *Config) { c.Server.Session.MaxAge = "forever" }, "server.session.max_age"},
		{"rate limit without rps", func(c *Config) {
			c.Server.RateLimit = RateLimitConfig{Enabled: true, Burst: 1}
		}, "server.rate_limit.rps"},
		{"rate limit without burst", func(c *Config) {
			c.Server.RateLimit = RateLimitConfig{Enabled: true, RPS: 1}
		}, "server.rate_limit.burst"},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "etcd" }, "storage.driver"},
		{"wildcard key prefix", func(c *Config) { c.Storage.KeyPrefix = "app%" }, "storage.key_prefix"},
		{"underscore key prefix", func(c *Config) { c.Storage.KeyPrefix = "car_hire" }, "storage.key_prefix"},
		{"bad storage ttl", func(c *Config) { c.Storage.TTL = "0s" }, "storage.ttl"},
		{"redis without addr", func(c *Config) { c.Storage.Driver = StorageRedis }, "redis.addr is required"},
		{"redis negative db", func(c *Config) {
			c.Storage.Driver = StorageRedis
			c.Redis = RedisConfig{Addr: "localhost:6379", DB: -1}
		}, "redis.db"},
		{"database bad driver", func(c *Config) {
			c.Storage.Driver = StorageDatabase
			c.Database.Driver = "mysql"
		}, "database.driver"},
		{"sqlite without path", func(c *Config) {
			c.Storage.Driver = StorageDatabase
			c.Database.Driver = "sqlite"
		}, "database.sqlite.path is required"},
		{"postgres without host", func(c *Config) {
			c.Storage.Driver = StorageDatabase
			c.Database = DatabaseConfig{Driver: "postgres", Postgres: PostgresConfig{Port: 5432, User: "u", DBName: "d", SSLMode: "disable"}}
		}, "database.postgres.host is required"},
		{"postgres bad sslmode", func(c *Config) {
			c.Storage.Driver = StorageDatabase
			c.Database = DatabaseConfig{Driver: "postgres", Postgres: PostgresConfig{Host: "h", Port: 5432, User: "u", DBName: "d", SSLMode: "maybe"}}
		}, "database.postgres.sslmode"},
		{"postgres sslmode disable in release", func(c *Config) {
			c.Server.Mode = "release"
			c.Backend.BaseURL = "https://rentals.example.com"
			c.Storage.Driver = StorageDatabase
			c.Database = DatabaseConfig{Driver: "postgres", Postgres: PostgresConfig{Host: "h", Port: 5432, User: "u", DBName: "d", SSLMode: "disable"}}
		}, "for server.mode"},
		{"pool lifetime negative", func(c *Config) {
			c.Storage.Driver = StorageDatabase
			c.Database = DatabaseConfig{Driver: "sqlite", SQLite: SQLiteConfig{Path: "x.db"}, Pool: PoolConfig{ConnMaxLifetime: "-5m"}}
		}, "database.pool.conn_max_lifetime"},
		{"missing backend", func(c *Config) { c.Backend.BaseURL = "" }, "backend.base_url is required"},
		{"relative backend", func(c *Config) { c.Backend.BaseURL = "/api" }, "backend.base_url"},
		{"non http backend", func(c *Config) { c.Backend.BaseURL = "ftp://rentals.example.com" }, "backend.base_url"},
		{"plain http backend in release", func(c *Config) { c.Server.Mode = "release" }, "must use https"},
		{"bad backend timeout", func(c *Config) { c.Backend.Timeout = "10" }, "backend.timeout"},
		{"bad catalog ttl", func(c *Config) { c.Backend.CatalogTTL = "-1m" }, "backend.catalog_ttl"},
		{"bad default language", func(c *Config) { c.Backend.DefaultLanguage = "english" }, "backend.default_language"},
		{"bad language", func(c *Config) { c.Backend.Languages = []string{"en", "d"} }, "backend.languages[1]"},
		{"unknown match policy", func(c *Config) { c.Search.LocationMatch = "fuzzy" }, "search.location_match"},
		{"bad idle ttl", func(c *Config) { c.Search.SessionIdleTTL = "0" }, "search.session_idle_ttl"},
		{"bad surface name", func(c *Config) {
			c.Search.Surfaces = map[string]SurfaceConfig{"Listing Page": {PageSize: 20}}
		}, "search.surfaces key"},
		{"page size too large", func(c *Config) {
			c.Search.Surfaces = map[string]SurfaceConfig{"listing": {PageSize: 500}}
		}, "search.surfaces.listing.page_size"},
		{"negative debounce", func(c *Config) {
			c.Search.Surfaces = map[string]SurfaceConfig{"landing": {Debounce: "-1ms"}}
		}, "search.surfaces.landing.debounce"},
		{"bad cron spec", func(c *Config) {
			c.Scheduler = SchedulerConfig{Enabled: true, SessionSweep: "every minute"}
		}, "scheduler.session_sweep"},
		{"five field cron spec", func(c *Config) {
			c.Scheduler = SchedulerConfig{Enabled: true, LocationRefresh: "*/10 * * * *"}
		}, "scheduler.location_refresh"},
		{"prune without retention", func(c *Config) {
			c.Scheduler = SchedulerConfig{Enabled: true, StorePrune: "0 0 4 * * *"}
		}, "scheduler.store_retention is required"},
		{"invalid log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"invalid log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_DisabledSchedulerSkipsCronParsing(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler = SchedulerConfig{Enabled: false, SessionSweep: "  not a spec  "}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Scheduler.SessionSweep != "not a spec" {
		t.Errorf("SessionSweep = %q, want trimmed", cfg.Scheduler.SessionSweep)
	}
}

func TestValidate_WhitespaceDurationsAreUnset(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Timeout = "   "
	cfg.Backend.Timeout = "\t"
	cfg.Search.SessionIdleTTL = " "
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Server.Timeout != "" || cfg.Backend.Timeout != "" || cfg.Search.SessionIdleTTL != "" {
		t.Errorf("expected whitespace durations to normalize to empty, got %q %q %q",
			cfg.Server.Timeout, cfg.Backend.Timeout, cfg.Search.SessionIdleTTL)
	}
}

func TestDurationOr(t *testing.T) {
	tests := []struct {
		in   string
		def  time.Duration
		want time.Duration
	}{
		{"", time.Second, time.Second},
		{"  ", time.Second, time.Second},
		{"250ms", time.Second, 250 * time.Millisecond},
		{" 2m ", 0, 2 * time.Minute},
		{"garbage", 5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := DurationOr(tt.in, tt.def); got != tt.want {
			t.Errorf("DurationOr(%q, %v) = %v, want %v", tt.in, tt.def, got, tt.want)
		}
	}
}
