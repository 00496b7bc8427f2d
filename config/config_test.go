package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: "http",
			HTTPPort:  8080,
		},
		API: APIConfig{Port: 8000},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Sandbox: SandboxConfig{Backend: "docker"},
		Kernel: KernelConfig{
			Port:          1111,
			PollTick:      time.Second,
			PollTimeout:   2 * time.Minute,
			BootstrapRoot: "/opt/kernelbox/bootstrap",
			ServerURI:     "http://kernelbox:8000",
			MainImage:     "python:3.5",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			Prefix:   "kernelbox",
		},
	}
}

// writeFixture writes values as config.yaml into a fresh directory and makes
// it the working directory of the test.
func writeFixture(t *testing.T, values map[string]any) {
	t.Helper()

	dir := t.TempDir()
	if values != nil {
		data, err := yaml.Marshal(values)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o600))
	}
	t.Chdir(dir)
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().validate())
	})

	t.Run("StdioSkipsHTTPPort", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Transport = "stdio"
		cfg.Server.HTTPPort = 0
		require.NoError(t, cfg.validate())
	})

	t.Run("NoneTransport", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Transport = "none"
		require.NoError(t, cfg.validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"InvalidServerTransport", func(c *Config) { c.Server.Transport = "invalid" }, "invalid server.transport"},
		{"InvalidHTTPPort", func(c *Config) { c.Server.HTTPPort = 0 }, "server.http_port must be a valid port"},
		{"InvalidAPIPort", func(c *Config) { c.API.Port = 70000 }, "api.port must be a valid port"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "invalid_level" }, "invalid logging.level"},
		{"UnsupportedBackend", func(c *Config) { c.Sandbox.Backend = "kubernetes" }, "unsupported sandbox.backend"},
		{"InvalidKernelPort", func(c *Config) { c.Kernel.Port = -1 }, "kernel.port must be a valid port"},
		{"InvalidPollTick", func(c *Config) { c.Kernel.PollTick = 0 }, "kernel.poll_tick must be positive"},
		{"PollTimeoutBelowTick", func(c *Config) { c.Kernel.PollTimeout = time.Millisecond }, "kernel.poll_timeout must be at least"},
		{"MissingBootstrapRoot", func(c *Config) { c.Kernel.BootstrapRoot = "" }, "kernel.bootstrap_root is required"},
		{"MissingServerURI", func(c *Config) { c.Kernel.ServerURI = "" }, "kernel.server_uri is required"},
		{"MissingRedisAddr", func(c *Config) { c.Redis.Addr = "" }, "redis.addr is required"},
		{"InvalidPoolSize", func(c *Config) { c.Redis.PoolSize = 0 }, "redis.pool_size must be positive"},
		{"MissingPrefix", func(c *Config) { c.Redis.Prefix = "" }, "redis.prefix is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNewDefaults(t *testing.T) {
	writeFixture(t, nil)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 8000, cfg.API.Port)
	assert.Equal(t, "docker", cfg.Sandbox.Backend)
	assert.Equal(t, 1111, cfg.Kernel.Port)
	assert.Equal(t, time.Second, cfg.Kernel.PollTick)
	assert.Equal(t, 120*time.Second, cfg.Kernel.PollTimeout)
	assert.Equal(t, "python:3.5", cfg.Kernel.MainImage)
	assert.Equal(t, "kernelbox", cfg.Redis.Prefix)
}

func TestNewFromFile(t *testing.T) {
	writeFixture(t, map[string]any{
		"server": map[string]any{"transport": "http", "http_port": 9090},
		"logging": map[string]any{"mode": "development", "level": "debug"},
		"sandbox": map[string]any{"backend": "podman", "nested": true},
		"kernel": map[string]any{
			"poll_tick":    "250ms",
			"poll_timeout": "30s",
			"runtimes_dir": "/opt/runtimes",
			"env":          map[string]any{"http_proxy": "http://proxy:3128"},
		},
		"redis": map[string]any{"addr": "redis:6379", "db": 2},
	})

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Server.Transport)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "development", cfg.Logging.Mode)
	assert.Equal(t, "podman", cfg.Sandbox.Backend)
	assert.True(t, cfg.Sandbox.Nested)
	assert.Equal(t, 250*time.Millisecond, cfg.Kernel.PollTick)
	assert.Equal(t, 30*time.Second, cfg.Kernel.PollTimeout)
	assert.Equal(t, "/opt/runtimes", cfg.Kernel.RuntimesDir)
	assert.Equal(t, "http://proxy:3128", cfg.Kernel.Env["http_proxy"])
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestNewEnvOverride(t *testing.T) {
	writeFixture(t, map[string]any{
		"server": map[string]any{"transport": "http"},
	})
	t.Setenv("KERNELBOX_SERVER_TRANSPORT", "none")
	t.Setenv("KERNELBOX_REDIS_ADDR", "bus:6380")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "none", cfg.Server.Transport)
	assert.Equal(t, "bus:6380", cfg.Redis.Addr)
}

func TestNewInvalidFile(t *testing.T) {
	t.Run("ValidationError", func(t *testing.T) {
		writeFixture(t, map[string]any{
			"sandbox": map[string]any{"backend": "local"},
		})

		_, err := New()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config validation error")
	})

	t.Run("Malformed", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [transport"), 0o600))
		t.Chdir(dir)

		_, err := New()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error reading config file")
	})
}

func TestNewKernel(t *testing.T) {
	t.Run("ContainerEnvironment", func(t *testing.T) {
		writeFixture(t, nil)
		t.Setenv("SERVER_URI", "http://kernelbox:8000")
		t.Setenv("KERNEL_INTERPRETER", "redis")
		t.Setenv("REDIS_HOST", "nb1_cache_dbi")
		t.Setenv("REDIS_PORT", "6379")

		cfg, err := NewKernel()
		require.NoError(t, err)

		assert.Equal(t, 1111, cfg.Port)
		assert.Equal(t, "/tmp/code-files", cfg.Root)
		assert.Equal(t, "http://kernelbox:8000", cfg.ServerURI)
		assert.Equal(t, "redis", cfg.Interpreter)
		assert.Equal(t, "nb1_cache_dbi:6379", cfg.Store.Addr())
		assert.Empty(t, cfg.Bus.Addr)
	})

	t.Run("PrefixedOverride", func(t *testing.T) {
		writeFixture(t, map[string]any{
			"stream_interval": "100ms",
			"bus":             map[string]any{"addr": "redis:6379"},
		})
		t.Setenv("KERNELBOX_INTERPRETER", "go")

		cfg, err := NewKernel()
		require.NoError(t, err)

		assert.Equal(t, "go", cfg.Interpreter)
		assert.Equal(t, 100*time.Millisecond, cfg.StreamInterval)
		assert.Equal(t, "redis:6379", cfg.Bus.Addr)
	})

	t.Run("NoDestination", func(t *testing.T) {
		writeFixture(t, nil)

		_, err := NewKernel()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server_uri is required")
	})

	t.Run("UnknownInterpreter", func(t *testing.T) {
		writeFixture(t, nil)
		t.Setenv("SERVER_URI", "http://kernelbox:8000")
		t.Setenv("KERNEL_INTERPRETER", "ruby")

		_, err := NewKernel()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid interpreter")
	})
}
