package wsns

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		expected Environment
	}{
		{name: "production", expected: Production},
		{name: " PROD ", expected: Production},
		{name: "test", expected: Test},
		{name: "testing", expected: Test},
		{name: "development", expected: Development},
		{name: "", expected: Development},
		{name: "staging", expected: Development},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseEnvironment(tt.name))
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("", "")
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.Env, config.Env)
	assert.Equal(t, defaults.Path, config.Path)
	assert.Equal(t, defaults.MiddlewareTimeout, config.MiddlewareTimeout)
	assert.Equal(t, defaults.PingInterval, config.PingInterval)
	assert.Equal(t, defaults.MaxPayload, config.MaxPayload)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
path: /realtime
origins:
  - example.com
  - "*.example.com"
middleware_timeout: 3s
controller_namespace: app
max_payload: 2048
`), 0o600))

	t.Setenv("WSNSTEST_PATH", "/from-env")
	t.Setenv("WSNSTEST_PING_INTERVAL", "5s")

	config, err := LoadConfig(path, "WSNSTEST")
	require.NoError(t, err)

	assert.Equal(t, Production, config.Env)
	assert.Equal(t, "/from-env", config.Path)
	assert.Equal(t, []string{"example.com", "*.example.com"}, config.Origins)
	assert.Equal(t, 3*time.Second, config.MiddlewareTimeout)
	assert.Equal(t, "app", config.ControllerNamespace)
	assert.Equal(t, 5*time.Second, config.PingInterval)
	assert.Equal(t, int64(2048), config.MaxPayload)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.True(t, errors.Is(err, ErrConfigNotFound))

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("path: [unterminated"), 0o600))
	_, err = LoadConfig(path, "")
	assert.True(t, errors.Is(err, ErrConfigRead))
}

func TestConfigWithDefaults(t *testing.T) {
	config := Config{MiddlewareTimeout: -1}.withDefaults()

	assert.Equal(t, Development, config.Env)
	assert.Equal(t, "/socket", config.Path)
	assert.Equal(t, time.Duration(-1), config.MiddlewareTimeout)
	assert.Equal(t, 25*time.Second, config.PingInterval)
	assert.NotNil(t, config.Logger)

	assert.Equal(t, 10*time.Second, Config{}.withDefaults().MiddlewareTimeout)
}

func TestNewLogger(t *testing.T) {
	for _, env := range []Environment{Development, Production, Test} {
		t.Run(string(env), func(t *testing.T) {
			logger, err := NewLogger(env)
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}

	logger, err := NewLogger(Test)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(1))
}
