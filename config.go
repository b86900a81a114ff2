package wsns

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Environment is the environment the server runs in. It decides whether
// stacks are sent to clients and whether server errors are logged.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Test        Environment = "test"
)

// ParseEnvironment parses an environment name. Unknown names are treated as
// development.
func ParseEnvironment(name string) Environment {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "production", "prod":
		return Production
	case "test", "testing":
		return Test
	}
	return Development
}

// Config configures a Server and the engine transport.
type Config struct {
	Env Environment

	// Path is the HTTP path the engine serves websocket upgrades on.
	Path string

	// Origins are the origin patterns accepted by the websocket handshake.
	// An empty list accepts every origin.
	Origins []string

	// MiddlewareTimeout bounds the middleware chain of a connection. Zero
	// uses the default of 10 seconds, a negative value disables the bound.
	MiddlewareTimeout time.Duration

	// ControllerNamespace is the default prefix of string handler references.
	ControllerNamespace string

	PingInterval time.Duration
	MaxPayload   int64

	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns the configuration used by NewServer when no config
// is given.
func DefaultConfig() Config {
	return Config{
		Env:               Development,
		Path:              "/socket",
		Origins:           []string{},
		MiddlewareTimeout: 10 * time.Second,
		PingInterval:      25 * time.Second,
		MaxPayload:        1 << 20,
	}
}

// LoadConfig reads a config file with viper, on top of DefaultConfig.
// Environment variables prefixed with envPrefix override the file, for
// example WSNS_MIDDLEWARE_TIMEOUT=5s. An empty path only reads the
// environment.
func LoadConfig(path string, envPrefix string) (Config, error) {
	defaults := DefaultConfig()

	v := viper.New()
	v.SetDefault("env", string(defaults.Env))
	v.SetDefault("path", defaults.Path)
	v.SetDefault("origins", defaults.Origins)
	v.SetDefault("middleware_timeout", defaults.MiddlewareTimeout)
	v.SetDefault("controller_namespace", defaults.ControllerNamespace)
	v.SetDefault("ping_interval", defaults.PingInterval)
	v.SetDefault("max_payload", defaults.MaxPayload)

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: %w", ErrConfigNotFound, err)
			}
			return Config{}, fmt.Errorf("%w: %w", ErrConfigRead, err)
		}
	}

	return Config{
		Env:                 ParseEnvironment(v.GetString("env")),
		Path:                v.GetString("path"),
		Origins:             v.GetStringSlice("origins"),
		MiddlewareTimeout:   v.GetDuration("middleware_timeout"),
		ControllerNamespace: v.GetString("controller_namespace"),
		PingInterval:        v.GetDuration("ping_interval"),
		MaxPayload:          v.GetInt64("max_payload"),
	}, nil
}

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigRead     = errors.New("failed to read config file")
)

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Env == "" {
		c.Env = defaults.Env
	}
	if c.Path == "" {
		c.Path = defaults.Path
	}
	if c.MiddlewareTimeout == 0 {
		c.MiddlewareTimeout = defaults.MiddlewareTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaults.PingInterval
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = defaults.MaxPayload
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
