package aegconf

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Empty(t, cfg.Storage.ImportDir)
	assert.Equal(t, 5000, cfg.Query.MaxResults)
	assert.Equal(t, 256, cfg.Query.CacheEntries)
	assert.Equal(t, 10*time.Minute, cfg.Query.CacheTTL)
	assert.Zero(t, cfg.Query.RateLimit)
	assert.Equal(t, 10, cfg.Query.RateBurst)
	assert.Zero(t, cfg.Query.DatasetRateLimit)
	assert.Equal(t, 5, cfg.Query.DatasetRateBurst)
	assert.Equal(t, runtime.NumCPU(), cfg.Worker.PoolSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: /var/lib/queryaegis
  import_dir: /var/spool/queryaegis
query:
  max_results: 100
  cache_ttl: 30s
  rate_limit: 2.5
log:
  level: debug
  format: text
`)
	t.Setenv("QUERYAEGIS_QUERY_MAX_RESULTS", "42")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/queryaegis", cfg.Storage.DataDir)
	assert.Equal(t, "/var/spool/queryaegis", cfg.Storage.ImportDir)
	assert.Equal(t, 42, cfg.Query.MaxResults, "环境变量优先于配置文件")
	assert.Equal(t, 30*time.Second, cfg.Query.CacheTTL)
	assert.Equal(t, 2.5, cfg.Query.RateLimit)
	assert.Equal(t, 256, cfg.Query.CacheEntries, "未配置的键保留默认值")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := map[string]string{
		"zero max results":       "query:\n  max_results: 0\n",
		"unknown log format":     "log:\n  format: xml\n",
		"import dir equals data": "storage:\n  data_dir: /d\n  import_dir: /d\n",
		"empty data dir":         "storage:\n  data_dir: \"\"\n",
		"negative pool size":     "worker:\n  pool_size: -1\n",
		"negative dataset rate":  "query:\n  dataset_rate_limit: -1\n",
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
			var ve validator.ValidationErrors
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
