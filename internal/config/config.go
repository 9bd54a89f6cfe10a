package config

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// Storage drivers.
const (
	StorageDatabase = "database"
	StorageRedis    = "redis"
	StorageMemory   = "memory"
)

// Location match policies, mirrored from the search package to keep config
// free of domain imports.
const (
	MatchFirst  = "first"
	MatchRanked = "ranked"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Storage   StorageConfig   `koanf:"storage"`
	Log       LogConfig       `koanf:"log"`
	Backend   BackendConfig   `koanf:"backend"`
	Search    SearchConfig    `koanf:"search"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `koanf:"host"`
	Port      int             `koanf:"port"`
	Mode      string          `koanf:"mode"`
	Timeout   string          `koanf:"timeout"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Session   SessionConfig   `koanf:"session"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// SessionConfig holds the browsing session cookie settings.
type SessionConfig struct {
	CookieName string `koanf:"cookie_name"`
	MaxAge     string `koanf:"max_age"`
	Secure     bool   `koanf:"secure"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// RedisConfig holds the Redis connection used by the redis storage driver.
type RedisConfig struct {
	Addr        string `koanf:"addr"`
	Password    string `koanf:"password"`
	DB          int    `koanf:"db"`
	DialTimeout string `koanf:"dial_timeout"`
}

// StorageConfig selects where per-session search state is persisted.
type StorageConfig struct {
	Driver    string `koanf:"driver"`
	KeyPrefix string `koanf:"key_prefix"`
	// TTL bounds the lifetime of an entry for the redis driver.
	TTL string `koanf:"ttl"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// BackendConfig points at the rental backend REST API.
type BackendConfig struct {
	BaseURL         string   `koanf:"base_url"`
	Timeout         string   `koanf:"timeout"`
	DefaultLanguage string   `koanf:"default_language"`
	Languages       []string `koanf:"languages"`
	CatalogTTL      string   `koanf:"catalog_ttl"`
}

// SearchConfig tunes the search coordinators.
type SearchConfig struct {
	LocationMatch  string                   `koanf:"location_match"`
	SessionIdleTTL string                   `koanf:"session_idle_ttl"`
	Surfaces       map[string]SurfaceConfig `koanf:"surfaces"`
}

// SurfaceConfig overrides the paging and debounce of one surface.
type SurfaceConfig struct {
	PageSize int    `koanf:"page_size"`
	Debounce string `koanf:"debounce"`
}

// SchedulerConfig holds the cron specs of background jobs. Specs carry a
// leading seconds field; an empty spec disables the job.
type SchedulerConfig struct {
	Enabled         bool   `koanf:"enabled"`
	LocationRefresh string `koanf:"location_refresh"`
	SessionSweep    string `koanf:"session_sweep"`
	StorePrune      string `koanf:"store_prune"`
	StoreRetention  string `koanf:"store_retention"`
}

var (
	keyPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9:.-]*$`)
	languagePattern  = regexp.MustCompile(`^[a-z]{2}(-[A-Za-z]{2})?$`)
	surfacePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__BACKEND__BASE_URL=https://api.example.com overrides backend.base_url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	// APP__SEARCH__SURFACES__LANDING__PAGE_SIZE -> search.surfaces.landing.page_size
	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values, normalizing
// whitespace and applying defaults in place.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}

	return nil
}

func (c *Config) validateServer() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	if err := optionalDuration("server.timeout", &c.Server.Timeout); err != nil {
		return err
	}
	if err := optionalDuration("server.cors.max_age", &c.Server.CORS.MaxAge); err != nil {
		return err
	}
	if err := optionalDuration("server.session.max_age", &c.Server.Session.MaxAge); err != nil {
		return err
	}
	c.Server.Session.CookieName = strings.TrimSpace(c.Server.Session.CookieName)

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return fmt.Errorf("invalid server.rate_limit.rps %v: must be positive when rate limiting is enabled", c.Server.RateLimit.RPS)
		}
		if c.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("invalid server.rate_limit.burst %d: must be positive when rate limiting is enabled", c.Server.RateLimit.Burst)
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageDatabase, StorageRedis, StorageMemory:
		c.Storage.Driver = driver
	default:
		return fmt.Errorf("invalid storage.driver %q: must be one of %q, %q, %q", c.Storage.Driver, StorageDatabase, StorageRedis, StorageMemory)
	}

	// The prefix ends up in a LIKE pattern when pruning, so wildcards are out.
	prefix := strings.TrimSpace(c.Storage.KeyPrefix)
	if !keyPrefixPattern.MatchString(prefix) {
		return fmt.Errorf("invalid storage.key_prefix %q: only letters, digits and \":.-\" are allowed", c.Storage.KeyPrefix)
	}
	c.Storage.KeyPrefix = prefix

	if err := optionalDuration("storage.ttl", &c.Storage.TTL); err != nil {
		return err
	}

	switch driver {
	case StorageDatabase:
		return c.validateDatabase()
	case StorageRedis:
		addr := strings.TrimSpace(c.Redis.Addr)
		if addr == "" {
			return fmt.Errorf("redis.addr is required when storage.driver is redis")
		}
		c.Redis.Addr = addr
		if c.Redis.DB < 0 {
			return fmt.Errorf("invalid redis.db %d: must not be negative", c.Redis.DB)
		}
		return optionalDuration("redis.dial_timeout", &c.Redis.DialTimeout)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	}

	if c.Database.Driver == "postgres" {
		pg := &c.Database.Postgres
		host := strings.TrimSpace(pg.Host)
		if host == "" {
			return fmt.Errorf("database.postgres.host is required when driver is postgres")
		}
		if pg.Port < 1 || pg.Port > 65535 {
			return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", pg.Port)
		}
		user := strings.TrimSpace(pg.User)
		if user == "" {
			return fmt.Errorf("database.postgres.user is required when driver is postgres")
		}
		dbName := strings.TrimSpace(pg.DBName)
		if dbName == "" {
			return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
		}

		sslMode := strings.TrimSpace(pg.SSLMode)
		switch sslMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
		if c.Server.Mode == gin.ReleaseMode {
			switch sslMode {
			case "require", "verify-ca", "verify-full":
			default:
				return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
			}
		}

		pg.Host = host
		pg.User = user
		pg.DBName = dbName
		pg.SSLMode = sslMode
	}

	return optionalDuration("database.pool.conn_max_lifetime", &c.Database.Pool.ConnMaxLifetime)
}

func (c *Config) validateBackend() error {
	b := &c.Backend

	raw := strings.TrimSpace(b.BaseURL)
	if raw == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend.base_url %q: must be an absolute http(s) URL", b.BaseURL)
	}
	if c.Server.Mode == gin.ReleaseMode && u.Scheme != "https" {
		return fmt.Errorf("invalid backend.base_url %q for server.mode %q: must use https", b.BaseURL, gin.ReleaseMode)
	}
	b.BaseURL = strings.TrimRight(raw, "/")

	if err := optionalDuration("backend.timeout", &b.Timeout); err != nil {
		return err
	}
	if err := optionalDuration("backend.catalog_ttl", &b.CatalogTTL); err != nil {
		return err
	}

	def := strings.ToLower(strings.TrimSpace(b.DefaultLanguage))
	if def == "" {
		def = "en"
	}
	if !languagePattern.MatchString(def) {
		return fmt.Errorf("invalid backend.default_language %q", b.DefaultLanguage)
	}
	b.DefaultLanguage = def

	langs := make([]string, 0, len(b.Languages)+1)
	for idx, l := range b.Languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if !languagePattern.MatchString(l) {
			return fmt.Errorf("invalid backend.languages[%d] %q", idx, b.Languages[idx])
		}
		if !slices.Contains(langs, l) {
			langs = append(langs, l)
		}
	}
	if !slices.Contains(langs, def) {
		langs = append([]string{def}, langs...)
	}
	b.Languages = langs
	return nil
}

func (c *Config) validateSearch() error {
	s := &c.Search

	match := strings.ToLower(strings.TrimSpace(s.LocationMatch))
	if match == "" {
		match = MatchFirst
	}
	switch match {
	case MatchFirst, MatchRanked:
		s.LocationMatch = match
	default:
		return fmt.Errorf("invalid search.location_match %q: must be one of %q, %q", s.LocationMatch, MatchFirst, MatchRanked)
	}

	if err := optionalDuration("search.session_idle_ttl", &s.SessionIdleTTL); err != nil {
		return err
	}

	for name, sc := range s.Surfaces {
		if !surfacePattern.MatchString(name) {
			return fmt.Errorf("invalid search.surfaces key %q", name)
		}
		if sc.PageSize < 0 || sc.PageSize > 100 {
			return fmt.Errorf("invalid search.surfaces.%s.page_size %d: must be between 0 (default) and 100", name, sc.PageSize)
		}
		sc.Debounce = strings.TrimSpace(sc.Debounce)
		if sc.Debounce != "" {
			d, err := time.ParseDuration(sc.Debounce)
			if err != nil {
				return fmt.Errorf("invalid search.surfaces.%s.debounce %q: %w", name, sc.Debounce, err)
			}
			if d < 0 {
				return fmt.Errorf("invalid search.surfaces.%s.debounce %q: must not be negative", name, sc.Debounce)
			}
		}
		s.Surfaces[name] = sc
	}
	return nil
}

func (c *Config) validateScheduler() error {
	s := &c.Scheduler
	specs := []struct {
		name  string
		value *string
	}{
		{"scheduler.location_refresh", &s.LocationRefresh},
		{"scheduler.session_sweep", &s.SessionSweep},
		{"scheduler.store_prune", &s.StorePrune},
	}
	for _, f := range specs {
		v := strings.TrimSpace(*f.value)
		*f.value = v
		if v == "" || !s.Enabled {
			continue
		}
		if _, err := cronParser.Parse(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.name, v, err)
		}
	}

	if err := optionalDuration("scheduler.store_retention", &s.StoreRetention); err != nil {
		return err
	}
	if s.Enabled && s.StorePrune != "" && s.StoreRetention == "" {
		return fmt.Errorf("scheduler.store_retention is required when scheduler.store_prune is set")
	}
	return nil
}

// optionalDuration trims *v and, when non-empty, requires a positive Go duration.
func optionalDuration(name string, v *string) error {
	*v = strings.TrimSpace(*v)
	if *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, *v)
	}
	return nil
}

// DurationOr parses v as a duration, returning def when v is empty or invalid.
// Validated configs only hold empty or positive values.
func DurationOr(v string, def time.Duration) time.Duration {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
