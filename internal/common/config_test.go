package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 2, config.Publish.MaxRetries)
	assert.Equal(t, 25, config.Publish.TitleLimit)
	assert.Equal(t, "BL02", config.Publish.CategoryCode)
	assert.Equal(t, "Asia/Tokyo", config.Browser.Timezone)
	assert.Equal(t, 1, config.Queue.MaxReceive)
	assert.Equal(t, LLMProviderGemini, config.LLM.DefaultProvider)
}

func TestLoadFromFiles_LaterFileOverrides(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9000

[publish]
max_retries = 4
category_code = "BL01"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[publish]
max_retries = 1
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, 1, config.Publish.MaxRetries)
	assert.Equal(t, "BL01", config.Publish.CategoryCode)
	// Untouched sections keep defaults
	assert.Equal(t, "120s", config.Publish.RetryBackoff)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SALONPRESS_SERVER_PORT", "9191")
	t.Setenv("SALONPRESS_LOG_OUTPUT", "stdout, file ,")
	t.Setenv("SALONPRESS_LLM_PROVIDER", "CLAUDE")
	t.Setenv("SALONPRESS_BROWSER_HEADLESS", "false")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 9191, config.Server.Port)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.Equal(t, LLMProviderClaude, config.LLM.DefaultProvider)
	assert.False(t, config.Browser.Headless)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 8085, config.Server.Port)

	ApplyFlagOverrides(config, 7000, "0.0.0.0")
	assert.Equal(t, 7000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 2*time.Minute, ParseDuration("2m", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("soon", time.Second))
	assert.Equal(t, time.Second, ParseDuration("-5s", time.Second))
}

func TestSealKey(t *testing.T) {
	config := NewDefaultConfig()
	config.Credentials.SecretKey = strings.Repeat("ab", 32)
	key, ephemeral, err := config.SealKey()
	require.NoError(t, err)
	assert.False(t, ephemeral)
	assert.Equal(t, byte(0xab), key[31])

	config.Credentials.SecretKey = "abcd"
	_, _, err = config.SealKey()
	assert.Error(t, err)

	config.Credentials.SecretKey = ""
	_, ephemeral, err = config.SealKey()
	require.NoError(t, err)
	assert.True(t, ephemeral)

	config.Environment = "production"
	_, _, err = config.SealKey()
	assert.Error(t, err)
}
