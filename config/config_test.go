package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/core"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Empty(t, c.StorePath)
	assert.False(t, c.Encrypted())
	assert.Equal(t, ai.ProviderStub, c.AI.Provider)
	assert.Equal(t, ai.DefaultDimensions, c.AI.Dimensions)
	assert.Equal(t, 32, c.BatchSize)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 30*time.Second, c.CallTimeout)
	assert.GreaterOrEqual(t, c.Concurrency, 1)
	assert.ErrorIs(t, c.RequireStore(), core.ErrConfig)
}

func TestFromEnv_AllVariables(t *testing.T) {
	c, err := FromEnv(envMap(map[string]string{
		EnvStorePath:           "/var/lib/pke",
		EnvStoreKey:            "0123456789abcdef",
		EnvEmbeddingProvider:   "OpenAI",
		EnvEmbeddingHost:       "http://embed.local:8080",
		EnvEmbeddingModel:      "text-embedding-3-small",
		EnvEmbeddingToken:      "sk-secret",
		EnvEmbeddingDimensions: "768",
		EnvConcurrency:         "6",
		EnvBatchSize:           "10",
		EnvCallTimeout:         "2s",
		EnvMaxRetries:          "5",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pke", c.StorePath)
	assert.True(t, c.Encrypted())
	assert.NoError(t, c.RequireStore())
	assert.Equal(t, ai.ProviderOpenAI, c.AI.Provider)
	assert.Equal(t, "http://embed.local:8080/v1", c.AI.Host)
	assert.Equal(t, "text-embedding-3-small", c.AI.Model)
	assert.Equal(t, 768, c.AI.Dimensions)
	assert.Equal(t, 6, c.Concurrency)
	assert.Equal(t, 10, c.BatchSize)
	assert.Equal(t, 2*time.Second, c.CallTimeout)
	assert.Equal(t, 5, c.MaxRetries)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad key length", map[string]string{EnvStoreKey: "short"}},
		{"non-numeric batch", map[string]string{EnvBatchSize: "lots"}},
		{"zero batch", map[string]string{EnvBatchSize: "0"}},
		{"negative concurrency", map[string]string{EnvConcurrency: "-2"}},
		{"bad timeout", map[string]string{EnvCallTimeout: "soon"}},
		{"negative timeout", map[string]string{EnvCallTimeout: "-1s"}},
		{"zero retries", map[string]string{EnvMaxRetries: "0"}},
		{"unknown provider", map[string]string{EnvEmbeddingProvider: "carrier-pigeon"}},
		{"zero dimensions", map[string]string{EnvEmbeddingDimensions: "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			assert.ErrorIs(t, err, core.ErrConfig)
		})
	}
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	c, err := FromEnv(envMap(map[string]string{
		EnvStoreKey:          "0123456789abcdef0123456789abcdef",
		EnvEmbeddingProvider: "openai",
		EnvEmbeddingToken:    "sk-very-secret",
	}))
	require.NoError(t, err)

	s := c.String()
	assert.NotContains(t, s, "0123456789abcdef")
	assert.NotContains(t, s, "sk-very-secret")
	assert.Equal(t, 2, strings.Count(s, "[redacted]"))
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PKE_STORE_PATH="+filepath.Join(dir, "db")+"\nPKE_BATCH_SIZE=7\n"), 0o600))

	t.Setenv(EnvStorePath, "")
	os.Unsetenv(EnvStorePath)
	t.Setenv(EnvBatchSize, "9")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "db"), c.StorePath)
	assert.Equal(t, 9, c.BatchSize, "process environment wins over .env")
}

func TestLoad_MissingDotEnv(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
