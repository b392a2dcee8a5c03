package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Server.PageSize)
	assert.Equal(t, 0.8, cfg.Dedupe.Threshold)
	assert.Equal(t, 4096, cfg.Dedupe.Features)
	assert.Equal(t, "hashing", cfg.Dedupe.Method)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "khobor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  page_size: 25
dedupe:
  threshold: 0.9
`), 0o600))

	t.Setenv("KHOBOR_STORAGE_PATH", "/tmp/other.db")
	t.Setenv("GROQ_MODEL", "mixtral")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 25, cfg.Server.PageSize)
	assert.Equal(t, 0.9, cfg.Dedupe.Threshold)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.Path)
	assert.Equal(t, "mixtral", cfg.NER.Model)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GROQ_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("GROQ_API_KEY") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.NER.APIKey)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KHOBOR_DEDUPE_THRESHOLD", "1.5")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
}
