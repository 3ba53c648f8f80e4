package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/exam/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Storage struct {
		Driver string
	}

	Redis struct {
		Cache struct {
			Addrs  []string
			Prefix string
			TTL    time.Duration
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	file := writeFile(t, "config.yaml", `
http:
  port: 8080
redis:
  cache:
    addrs: ["localhost:6379"]
    ttl: 5m
`)

	tests := map[string]struct {
		env    map[string]string
		assert func(t *testing.T, c testConfig)
	}{
		"file overrides defaults": {
			assert: func(t *testing.T, c testConfig) {
				assert.EqualValues(t, 8080, c.HTTP.Port)
				assert.Equal(t, []string{"localhost:6379"}, c.Redis.Cache.Addrs)
				assert.Equal(t, 5*time.Minute, c.Redis.Cache.TTL)
			},
		},
		"defaults kept when absent from file": {
			assert: func(t *testing.T, c testConfig) {
				assert.Equal(t, "memory", c.Storage.Driver)
				assert.Equal(t, "exam", c.Redis.Cache.Prefix)
			},
		},
		"env overrides file": {
			env: map[string]string{
				"HTTP_PORT":       "9090",
				"REDIS_CACHE_TTL": "30s",
				"STORAGE_DRIVER":  "postgres",
			},
			assert: func(t *testing.T, c testConfig) {
				assert.EqualValues(t, 9090, c.HTTP.Port)
				assert.Equal(t, 30*time.Second, c.Redis.Cache.TTL)
				assert.Equal(t, "postgres", c.Storage.Driver)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			var c testConfig
			c.Storage.Driver = "memory"
			c.Redis.Cache.Prefix = "exam"

			require.NoError(t, config.Load(file, &c))
			tc.assert(t, c)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	require.Error(t, config.Load(filepath.Join(t.TempDir(), "nope.yaml"), &c))
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")

	var c testConfig
	c.Storage.Driver = "memory"
	c.HTTP.Port = 8080

	require.NoError(t, config.Load("", &c))
	assert.Equal(t, "postgres", c.Storage.Driver)
	assert.EqualValues(t, 8080, c.HTTP.Port)
}

func TestLoadEnv(t *testing.T) {
	file := writeFile(t, ".env", "EXAM_TEST_SECRET=from-file\nEXAM_TEST_KEPT=from-file\n")
	t.Setenv("EXAM_TEST_KEPT", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("EXAM_TEST_SECRET") })

	require.NoError(t, config.LoadEnv(filepath.Join(t.TempDir(), "missing.env"), file))

	assert.Equal(t, "from-file", os.Getenv("EXAM_TEST_SECRET"))
	assert.Equal(t, "from-env", os.Getenv("EXAM_TEST_KEPT"))
}
