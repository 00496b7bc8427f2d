package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. KERNELBOX_SERVER_TRANSPORT.
const EnvPrefix = "KERNELBOX"

// Config represents the orchestrator configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Kernel  KernelConfig  `mapstructure:"kernel"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// ServerConfig holds the MCP transport configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// APIConfig holds the orchestrator HTTP surface configuration
type APIConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// SandboxConfig holds container engine configuration
type SandboxConfig struct {
	Backend string `mapstructure:"backend"`
	// Nested enables host path translation when the orchestrator itself
	// runs in a container.
	Nested bool `mapstructure:"nested"`
}

// KernelConfig holds how kernels are started and polled
type KernelConfig struct {
	Port          int               `mapstructure:"port"`
	PollTick      time.Duration     `mapstructure:"poll_tick"`
	PollTimeout   time.Duration     `mapstructure:"poll_timeout"`
	BootstrapRoot string            `mapstructure:"bootstrap_root"`
	ServerURI     string            `mapstructure:"server_uri"`
	MainImage     string            `mapstructure:"main_image"`
	RuntimesDir   string            `mapstructure:"runtimes_dir"`
	Env           map[string]string `mapstructure:"env"`
}

// RedisConfig holds the event bus connection
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Prefix   string `mapstructure:"prefix"`
}

// New loads and validates the orchestrator configuration
func New() (*Config, error) {
	v := newViper()

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("api.port", 8000)
	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.nested", false)
	v.SetDefault("kernel.port", 1111)
	v.SetDefault("kernel.poll_tick", time.Second)
	v.SetDefault("kernel.poll_timeout", 120*time.Second)
	v.SetDefault("kernel.bootstrap_root", "/opt/kernelbox/bootstrap")
	v.SetDefault("kernel.server_uri", "http://kernelbox:8000")
	v.SetDefault("kernel.main_image", "python:3.5")
	v.SetDefault("kernel.runtimes_dir", "")
	v.SetDefault("kernel.env", map[string]string{})
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.prefix", "kernelbox")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	switch c.Server.Transport {
	case "stdio", "none":
	case "http":
		if err := validatePort("server.http_port", c.Server.HTTPPort); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio', 'http' or 'none'", c.Server.Transport)
	}

	if err := validatePort("api.port", c.API.Port); err != nil {
		return err
	}

	if err := validateLogging(c.Logging); err != nil {
		return err
	}

	if c.Sandbox.Backend != "docker" && c.Sandbox.Backend != "podman" {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if err := validatePort("kernel.port", c.Kernel.Port); err != nil {
		return err
	}

	if c.Kernel.PollTick <= 0 {
		return fmt.Errorf("kernel.poll_tick must be positive, got: %s", c.Kernel.PollTick)
	}

	if c.Kernel.PollTimeout < c.Kernel.PollTick {
		return fmt.Errorf("kernel.poll_timeout must be at least kernel.poll_tick, got: %s", c.Kernel.PollTimeout)
	}

	if c.Kernel.BootstrapRoot == "" {
		return errors.New("kernel.bootstrap_root is required")
	}

	if c.Kernel.ServerURI == "" {
		return errors.New("kernel.server_uri is required")
	}

	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}

	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis.pool_size must be positive, got: %d", c.Redis.PoolSize)
	}

	if c.Redis.Prefix == "" {
		return errors.New("redis.prefix is required")
	}

	return nil
}

// Kernel is the configuration of the execution server running inside a
// kernel container. Besides KERNELBOX_* overrides it reads the variables the
// orchestrator sets on the container: SERVER_URI, KERNEL_INTERPRETER,
// REDIS_HOST and REDIS_PORT.
type Kernel struct {
	Port           int           `mapstructure:"port"`
	Root           string        `mapstructure:"root"`
	ShellDir       string        `mapstructure:"shell_dir"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
	Interpreter    string        `mapstructure:"interpreter"`
	ServerURI      string        `mapstructure:"server_uri"`
	Logging        LoggingConfig `mapstructure:"logging"`
	Store          StoreConfig   `mapstructure:"store"`
	Bus            RedisConfig   `mapstructure:"bus"`
}

// StoreConfig locates the data store a redis kernel talks to
type StoreConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port of the store.
func (s StoreConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewKernel loads and validates the in-kernel server configuration
func NewKernel() (*Kernel, error) {
	v := newViper()

	v.SetDefault("port", 1111)
	v.SetDefault("root", "/tmp/code-files")
	v.SetDefault("shell_dir", "/tmp")
	v.SetDefault("stream_interval", time.Duration(0))
	v.SetDefault("interpreter", "python")
	v.SetDefault("server_uri", "")
	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 6379)
	v.SetDefault("bus.addr", "")
	v.SetDefault("bus.password", "")
	v.SetDefault("bus.db", 0)
	v.SetDefault("bus.pool_size", 2)
	v.SetDefault("bus.prefix", "kernelbox")

	bindings := map[string]string{
		"server_uri":  "SERVER_URI",
		"interpreter": "KERNEL_INTERPRETER",
		"store.host":  "REDIS_HOST",
		"store.port":  "REDIS_PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var kernel Kernel
	if err := v.Unmarshal(&kernel); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := kernel.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &kernel, nil
}

func (k *Kernel) validate() error {
	if err := validatePort("port", k.Port); err != nil {
		return err
	}

	if k.Root == "" {
		return errors.New("root is required")
	}

	if k.StreamInterval < 0 {
		return fmt.Errorf("stream_interval must not be negative, got: %s", k.StreamInterval)
	}

	switch k.Interpreter {
	case "python", "go", "redis":
	default:
		return fmt.Errorf("invalid interpreter: %s, must be 'python', 'go' or 'redis'", k.Interpreter)
	}

	if k.ServerURI == "" && k.Bus.Addr == "" {
		return errors.New("server_uri is required when bus.addr is not set")
	}

	if k.Interpreter == "redis" {
		if err := validatePort("store.port", k.Store.Port); err != nil {
			return err
		}
	}

	return validateLogging(k.Logging)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	if l.Mode != "production" && l.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", l.Mode)
	}

	if _, err := zapcore.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", l.Level)
	}

	return nil
}

func validatePort(key string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be a valid port, got: %d", key, port)
	}
	return nil
}
