package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossref-matcher/internal/match"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, match.DefaultWeights(), cfg.EngineConfig().Weights)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "crossref.yaml", `
threshold: 0.55
matching:
  weights:
    levenshtein: 0.2
    jaro_winkler: 0.2
    jaccard: 0.2
    cosine: 0.2
    semantic: 0.2
  include_unmatched: true
  top_k: 2
database:
  driver: postgres
  dsn: postgres://localhost/crossref
server:
  port: 9090
  read_timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.55, cfg.Threshold)
	assert.Equal(t, 0.2, cfg.Matching.Weights.Semantic)
	assert.True(t, cfg.Matching.IncludeUnmatched)
	assert.Equal(t, 2, cfg.Matching.TopK)
	assert.Equal(t, match.DefaultThresholds(), cfg.Matching.Thresholds, "unset keys keep defaults")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"weights", "matching:\n  weights:\n    levenshtein: 0.9\n"},
		{"thresholds", "matching:\n  thresholds:\n    low: 0.9\n"},
		{"threshold", "threshold: 2\n"},
		{"driver", "database:\n  driver: oracle\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.yaml", tt.content))
			assert.ErrorIs(t, err, match.ErrInvalidConfig)
		})
	}
}

func TestLoadUnknownField(t *testing.T) {
	_, err := Load(writeFile(t, "typo.yaml", "matchng:\n  top_k: 2\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.75")
	t.Setenv("MATCH_ENABLE_PARALLEL", "off")
	t.Setenv("MATCH_MAX_WORKERS", "2")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("WEB_PORT", "7000")
	t.Setenv("WEB_WRITE_TIMEOUT", "90s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Threshold)
	assert.False(t, cfg.Matching.EnableParallel)
	assert.Equal(t, 2, cfg.Matching.MaxWorkers)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
}

func TestSaveAndLoadMatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")

	m := match.DefaultConfig()
	m.Weights = match.Weights{Levenshtein: 0.4, JaroWinkler: 0.3, Jaccard: 0.1, Cosine: 0.1, Semantic: 0.1}
	m.FallbackToText = true
	require.NoError(t, SaveMatching(path, m))

	loaded, err := LoadMatching(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	bad := m
	bad.TopK = 0
	assert.ErrorIs(t, SaveMatching(path, bad), match.ErrInvalidConfig)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "42")
	t.Setenv("CFG_TEST_BAD_INT", "forty")
	t.Setenv("CFG_TEST_FLOAT", "0.5")
	t.Setenv("CFG_TEST_BOOL", "YES")
	t.Setenv("CFG_TEST_DURATION", "250ms")

	assert.Equal(t, "fallback", GetEnv("CFG_TEST_UNSET", "fallback"))
	assert.Equal(t, 42, GetEnvInt("CFG_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("CFG_TEST_BAD_INT", 1))
	assert.Equal(t, 0.5, GetEnvFloat("CFG_TEST_FLOAT", 0))
	assert.True(t, GetEnvBool("CFG_TEST_BOOL", false))
	assert.True(t, GetEnvBool("CFG_TEST_UNSET", true))
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("CFG_TEST_DURATION", time.Second))
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, ".env", "# comment\nCFG_TEST_FROM_FILE=\"hello\"\nexport CFG_TEST_EXPORTED=1\nCFG_TEST_PRESET=file\nnot a pair\n")
	t.Setenv("CFG_TEST_PRESET", "process")
	t.Setenv("CFG_TEST_FROM_FILE", "")
	t.Setenv("CFG_TEST_EXPORTED", "")

	loaded, err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"), path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded)

	assert.Equal(t, "hello", os.Getenv("CFG_TEST_FROM_FILE"))
	assert.Equal(t, "1", os.Getenv("CFG_TEST_EXPORTED"))
	assert.Equal(t, "process", os.Getenv("CFG_TEST_PRESET"))

	none, err := LoadEnv(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, "", none)
}
