package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "PAPERWATCHER_CONFIG"
)

// Config holds high-level settings required across the application.
type Config struct {
	BaseDir       string             `yaml:"baseDir"`
	Logging       LoggingConfig      `yaml:"logging"`
	Zotero        ZoteroConfig       `yaml:"zotero"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Embedding     EmbeddingConfig    `yaml:"embedding"`
	Sources       SourcesConfig      `yaml:"sources"`
	Scoring       ScoringConfig      `yaml:"scoring"`
	Watch         WatchConfig        `yaml:"watch"`
	Notifications NotificationConfig `yaml:"notifications"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ZoteroConfig points at the reference library.
type ZoteroConfig struct {
	BaseURL       string `yaml:"baseUrl"`
	UserID        string `yaml:"userId"`
	APIKey        string `yaml:"apiKey"`
	PageSize      int    `yaml:"pageSize"`
	PoliteDelayMS int    `yaml:"politeDelayMs"`
}

// DatabaseConfig describes storage locations. An empty HistoryDSN disables delivery history.
type DatabaseConfig struct {
	ItemsPath  string `yaml:"itemsPath"`
	HistoryDSN string `yaml:"historyDsn"`
}

// SchedulerConfig defines how often watch cycles run in daemon mode.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// EmbeddingConfig selects the vectorizer backend.
type EmbeddingConfig struct {
	Backend        string        `yaml:"backend"`
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"apiKey"`
	BatchSize      int           `yaml:"batchSize"`
	MaxLength      int           `yaml:"maxLength"`
	HashDimension  int           `yaml:"hashDimension"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// SourcesConfig groups settings shared by candidate sources.
type SourcesConfig struct {
	WindowDays    int    `yaml:"windowDays"`
	Mailto        string `yaml:"mailto"`
	Concurrency   int    `yaml:"concurrency"`
	RatePerSecond int    `yaml:"ratePerSecond"`
}

// ScoringConfig holds everything the ranker and dedupe engine need.
type ScoringConfig struct {
	Weights            ScoreWeights `yaml:"weights"`
	Thresholds         Thresholds   `yaml:"thresholds"`
	DecayDays          DecayDays    `yaml:"decayDays"`
	WhitelistAuthors   []string     `yaml:"whitelistAuthors"`
	WhitelistVenues    []string     `yaml:"whitelistVenues"`
	TitleThreshold     float64      `yaml:"titleThreshold"`
	JournalMetricsPath string       `yaml:"journalMetricsPath"`
}

// ScoreWeights are the coefficients of the composite score.
type ScoreWeights struct {
	Similarity     float64 `yaml:"similarity"`
	Recency        float64 `yaml:"recency"`
	Citations      float64 `yaml:"citations"`
	Altmetric      float64 `yaml:"altmetric"`
	JournalQuality float64 `yaml:"journalQuality"`
	AuthorBonus    float64 `yaml:"authorBonus"`
	VenueBonus     float64 `yaml:"venueBonus"`
}

// Thresholds split scores into labels.
type Thresholds struct {
	MustRead float64 `yaml:"mustRead"`
	Consider float64 `yaml:"consider"`
}

// DecayDays are the upper bounds (inclusive) of the recency tiers.
type DecayDays struct {
	Fast   int `yaml:"fast"`
	Medium int `yaml:"medium"`
	Slow   int `yaml:"slow"`
}

// WatchConfig holds the post-filters applied after ranking.
type WatchConfig struct {
	RecentDays       int     `yaml:"recentDays"`
	MaxPreprintRatio float64 `yaml:"maxPreprintRatio"`
	Top              int     `yaml:"top"`
	DigestSize       int     `yaml:"digestSize"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SiteConfig describes a single candidate source with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Enabled    *bool             `yaml:"enabled"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// IsEnabled treats a missing flag as enabled.
func (s SiteConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// CategoryConfig holds the concrete endpoints to crawl (e.g., arXiv category URLs).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// envOverrides are read from the process environment after .env loading.
type envOverrides struct {
	ZoteroAPIKey      string `envconfig:"ZOTERO_API_KEY"`
	ZoteroUserID      string `envconfig:"ZOTERO_USER_ID"`
	DatabaseDSN       string `envconfig:"DATABASE_DSN"`
	TelegramToken     string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID    string `envconfig:"TELEGRAM_CHAT_ID"`
	EmbeddingAPIKey   string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingEndpoint string `envconfig:"EMBEDDING_ENDPOINT"`
	LogLevel          string `envconfig:"LOG_LEVEL"`
}

// Options control where Load looks for its inputs.
type Options struct {
	ConfigPath string
	EnvPath    string
}

// Load reads YAML configuration (if present) over defaults and applies environment overrides.
func Load(opts Options) (Config, error) {
	envPath := opts.EnvPath
	if envPath == "" {
		envPath = ".env"
	}
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load %s: %v", envPath, err)
	}

	cfg := defaultConfig()

	path := opts.ConfigPath
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	cfg.bindTimezone()
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings no pipeline run could work with.
func (c Config) Validate() error {
	if c.Scoring.Thresholds.MustRead < c.Scoring.Thresholds.Consider {
		return fmt.Errorf("scoring.thresholds.mustRead (%.3f) must be >= consider (%.3f)",
			c.Scoring.Thresholds.MustRead, c.Scoring.Thresholds.Consider)
	}
	d := c.Scoring.DecayDays
	if d.Fast < 0 || d.Fast > d.Medium || d.Medium > d.Slow {
		return fmt.Errorf("scoring.decayDays must satisfy 0 <= fast <= medium <= slow, got %d/%d/%d", d.Fast, d.Medium, d.Slow)
	}
	if t := c.Scoring.TitleThreshold; t < 0 || t > 1 {
		return fmt.Errorf("scoring.titleThreshold must be within [0,1], got %.3f", t)
	}
	if r := c.Watch.MaxPreprintRatio; r < 0 || r > 1 {
		return fmt.Errorf("watch.maxPreprintRatio must be within [0,1], got %.3f", r)
	}
	switch c.Embedding.Backend {
	case "http", "hashing":
	default:
		return fmt.Errorf("embedding.backend %q is not supported (http, hashing)", c.Embedding.Backend)
	}
	return nil
}

// Path resolves a possibly relative path against BaseDir.
func (c Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// IndexPath is where the profile index lives.
func (c Config) IndexPath() string {
	return c.Path(filepath.Join("data", "profile.index"))
}

// ProfilePath is where the profile summary lives.
func (c Config) ProfilePath() string {
	return c.Path(filepath.Join("data", "profile.json"))
}

func (c *Config) applyEnvOverrides() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if env.ZoteroAPIKey != "" {
		c.Zotero.APIKey = env.ZoteroAPIKey
	}
	if env.ZoteroUserID != "" {
		c.Zotero.UserID = env.ZoteroUserID
	}
	if env.DatabaseDSN != "" {
		c.Database.HistoryDSN = env.DatabaseDSN
	}
	if env.TelegramToken != "" {
		c.Notifications.Telegram.BotToken = env.TelegramToken
	}
	if env.TelegramChatID != "" {
		c.Notifications.Telegram.ChatID = env.TelegramChatID
	}
	if env.EmbeddingAPIKey != "" {
		c.Embedding.APIKey = env.EmbeddingAPIKey
	}
	if env.EmbeddingEndpoint != "" {
		c.Embedding.Endpoint = env.EmbeddingEndpoint
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	return nil
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// fillDefaults restores values a partial YAML file may have zeroed.
func (c *Config) fillDefaults() {
	def := defaultConfig()
	if c.BaseDir == "" {
		c.BaseDir = "."
	}
	if c.Database.ItemsPath == "" {
		c.Database.ItemsPath = def.Database.ItemsPath
	}
	if c.Zotero.PageSize <= 0 {
		c.Zotero.PageSize = def.Zotero.PageSize
	}
	if c.Zotero.BaseURL == "" {
		c.Zotero.BaseURL = def.Zotero.BaseURL
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = def.Scheduler.Interval
	}
	if c.Sources.WindowDays <= 0 {
		c.Sources.WindowDays = def.Sources.WindowDays
	}
	if c.Sources.Concurrency <= 0 {
		c.Sources.Concurrency = def.Sources.Concurrency
	}
	if c.Scoring.DecayDays == (DecayDays{}) {
		c.Scoring.DecayDays = def.Scoring.DecayDays
	}
	c.Embedding.Backend = strings.ToLower(strings.TrimSpace(c.Embedding.Backend))
	if c.Embedding.Backend == "" {
		c.Embedding.Backend = def.Embedding.Backend
	}
	if len(c.Sites) == 0 {
		c.Sites = def.Sites
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	enabled, disabled := true, false
	return Config{
		BaseDir: ".",
		Logging: LoggingConfig{Level: "info"},
		Zotero: ZoteroConfig{
			BaseURL:       "https://api.zotero.org",
			PageSize:      100,
			PoliteDelayMS: 200,
		},
		Database:  DatabaseConfig{ItemsPath: filepath.Join("data", "profile.sqlite")},
		Scheduler: SchedulerConfig{Interval: 24 * time.Hour, Timezone: defaultTimezone, location: tz},
		Embedding: EmbeddingConfig{
			Backend:        "http",
			Endpoint:       "http://127.0.0.1:8844/embed",
			Model:          "sentence-transformers/all-MiniLM-L6-v2",
			BatchSize:      32,
			MaxLength:      512,
			HashDimension:  384,
			RequestTimeout: 45 * time.Second,
		},
		Sources: SourcesConfig{
			WindowDays:    30,
			Mailto:        "you@example.com",
			Concurrency:   4,
			RatePerSecond: 5,
		},
		Scoring: ScoringConfig{
			Weights: ScoreWeights{
				Similarity:     0.45,
				Recency:        0.15,
				Citations:      0.15,
				Altmetric:      0.10,
				JournalQuality: 0.08,
				AuthorBonus:    0.02,
				VenueBonus:     0.05,
			},
			Thresholds:         Thresholds{MustRead: 0.75, Consider: 0.5},
			DecayDays:          DecayDays{Fast: 30, Medium: 60, Slow: 180},
			TitleThreshold:     0.9,
			JournalMetricsPath: filepath.Join("data", "journal_metrics.csv"),
		},
		Watch: WatchConfig{RecentDays: 7, MaxPreprintRatio: 0.3, Top: 50, DigestSize: 10},
		Sites: []SiteConfig{
			{Name: "openalex", Scanner: "openalex", Enabled: &enabled},
			{Name: "crossref", Scanner: "crossref", Enabled: &enabled},
			{
				Name:    "arxiv",
				Scanner: "arxiv",
				Enabled: &enabled,
				Categories: []CategoryConfig{
					{Name: "cs.LG", URL: "https://export.arxiv.org/list/cs.LG/pastweek"},
				},
			},
			{Name: "biorxiv", Scanner: "biorxiv", Enabled: &enabled},
			{Name: "medrxiv", Scanner: "biorxiv", Enabled: &disabled, Options: map[string]string{"server": "medrxiv"}},
		},
	}
}
