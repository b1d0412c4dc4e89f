package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideVars = []string{
	configPathEnv,
	"ZOTERO_API_KEY", "ZOTERO_USER_ID", "DATABASE_DSN",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	"EMBEDDING_API_KEY", "EMBEDDING_ENDPOINT", "LOG_LEVEL",
}

// isolateEnv blanks every variable Load reads and returns a missing .env path.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, name := range overrideVars {
		t.Setenv(name, "")
	}
	return filepath.Join(t.TempDir(), "missing.env")
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	envPath := isolateEnv(t)

	cfg, err := Load(Options{EnvPath: envPath})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.InDelta(t, 0.45, cfg.Scoring.Weights.Similarity, 1e-9)
	assert.Equal(t, DecayDays{Fast: 30, Medium: 60, Slow: 180}, cfg.Scoring.DecayDays)
	assert.InDelta(t, 0.9, cfg.Scoring.TitleThreshold, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
	assert.Equal(t, "http", cfg.Embedding.Backend)
	assert.Equal(t, filepath.Join("data", "profile.index"), cfg.IndexPath())
	assert.Len(t, cfg.Sites, 5)
	assert.False(t, cfg.Sites[4].IsEnabled())
	assert.True(t, cfg.Sites[0].IsEnabled())
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	envPath := isolateEnv(t)
	path := writeFile(t, "config.yaml", `
baseDir: /srv/paperwatcher
scheduler:
  interval: 12h
  timezone: Europe/Berlin
embedding:
  backend: " Hashing "
  hashDimension: 256
scoring:
  weights:
    similarity: 0.6
  thresholds:
    mustRead: 0.8
    consider: 0.4
  whitelistVenues: [Nature]
watch:
  top: 20
sites:
  - name: arxiv-ml
    scanner: arxiv
    categories:
      - name: stat.ML
        url: https://export.arxiv.org/list/stat.ML/pastweek
`)

	cfg, err := Load(Options{ConfigPath: path, EnvPath: envPath})
	require.NoError(t, err)

	assert.Equal(t, 12*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.Location().String())
	assert.Equal(t, "hashing", cfg.Embedding.Backend)
	assert.Equal(t, 256, cfg.Embedding.HashDimension)
	assert.InDelta(t, 0.6, cfg.Scoring.Weights.Similarity, 1e-9)
	assert.InDelta(t, 0.15, cfg.Scoring.Weights.Recency, 1e-9)
	assert.InDelta(t, 0.8, cfg.Scoring.Thresholds.MustRead, 1e-9)
	assert.Equal(t, []string{"Nature"}, cfg.Scoring.WhitelistVenues)
	assert.Equal(t, 20, cfg.Watch.Top)
	require.Len(t, cfg.Sites, 1)
	assert.Equal(t, "stat.ML", cfg.Sites[0].Categories[0].Name)
	assert.Equal(t, "/srv/paperwatcher/data/profile.json", cfg.ProfilePath())
	assert.Equal(t, "/srv/paperwatcher/data/profile.sqlite", cfg.Path(cfg.Database.ItemsPath))
}

func TestLoadConfigPathFromEnvironment(t *testing.T) {
	envPath := isolateEnv(t)
	path := writeFile(t, "config.yaml", "watch:\n  digestSize: 3\n")
	t.Setenv(configPathEnv, path)

	cfg, err := Load(Options{EnvPath: envPath})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Watch.DigestSize)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	envPath := isolateEnv(t)
	t.Setenv("ZOTERO_API_KEY", "zkey")
	t.Setenv("ZOTERO_USER_ID", "123")
	t.Setenv("DATABASE_DSN", "postgres://localhost/pw")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot")
	t.Setenv("EMBEDDING_ENDPOINT", "http://embed:9000/v1/embeddings")
	t.Setenv("LOG_LEVEL", "debug")

	path := writeFile(t, "config.yaml", "zotero:\n  apiKey: from-yaml\n")
	cfg, err := Load(Options{ConfigPath: path, EnvPath: envPath})
	require.NoError(t, err)

	assert.Equal(t, "zkey", cfg.Zotero.APIKey)
	assert.Equal(t, "123", cfg.Zotero.UserID)
	assert.Equal(t, "postgres://localhost/pw", cfg.Database.HistoryDSN)
	assert.Equal(t, "bot", cfg.Notifications.Telegram.BotToken)
	assert.Equal(t, "http://embed:9000/v1/embeddings", cfg.Embedding.Endpoint)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDotEnvFile(t *testing.T) {
	isolateEnv(t)
	require.NoError(t, os.Unsetenv("TELEGRAM_CHAT_ID"))
	envPath := writeFile(t, ".env", "TELEGRAM_CHAT_ID=4242\n")
	t.Cleanup(func() { _ = os.Unsetenv("TELEGRAM_CHAT_ID") })

	cfg, err := Load(Options{EnvPath: envPath})
	require.NoError(t, err)
	assert.Equal(t, "4242", cfg.Notifications.Telegram.ChatID)
}

func TestLoadErrors(t *testing.T) {
	envPath := isolateEnv(t)

	_, err := Load(Options{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"), EnvPath: envPath})
	require.Error(t, err)

	bad := writeFile(t, "bad.yaml", "scoring: [unclosed\n")
	_, err = Load(Options{ConfigPath: bad, EnvPath: envPath})
	require.Error(t, err)

	inverted := writeFile(t, "inverted.yaml", "scoring:\n  thresholds:\n    mustRead: 0.3\n    consider: 0.6\n")
	_, err = Load(Options{ConfigPath: inverted, EnvPath: envPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mustRead")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := defaultConfig()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"decay order":     func(c *Config) { c.Scoring.DecayDays = DecayDays{Fast: 90, Medium: 60, Slow: 180} },
		"title threshold": func(c *Config) { c.Scoring.TitleThreshold = 1.5 },
		"preprint ratio":  func(c *Config) { c.Watch.MaxPreprintRatio = -0.1 },
		"backend":         func(c *Config) { c.Embedding.Backend = "onnx" },
	}
	for name, mutate := range cases {
		cfg := defaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestSiteEnabledDefault(t *testing.T) {
	t.Parallel()

	off := false
	assert.True(t, SiteConfig{}.IsEnabled())
	assert.False(t, SiteConfig{Enabled: &off}.IsEnabled())
}
