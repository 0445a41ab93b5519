// Package config loads the monitor configuration from defaults, an optional YAML file
// and SNOWPEAK_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SNOWPEAK"

type Config struct {
	Mode       string         `mapstructure:"mode"`
	OperatorID string         `mapstructure:"operator_id"`
	User       string         `mapstructure:"user"` // sender stamped on outbound commands
	Broker     BrokerConfig   `mapstructure:"broker"`
	Metadata   MetadataConfig `mapstructure:"metadata"`
	Cache      CacheConfig    `mapstructure:"cache"`
	HTTP       HTTPConfig     `mapstructure:"http"`
	GRPC       GRPCConfig     `mapstructure:"grpc"`
	Logging    LoggingConfig  `mapstructure:"logging"`
}

type BrokerConfig struct {
	URL            string        `mapstructure:"url"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	ClientID       string        `mapstructure:"client_id"` // a random suffix is added when empty
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	ConnectRetries int           `mapstructure:"connect_retries"`
	Buffer         int           `mapstructure:"buffer"`
}

type MetadataConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Token           string        `mapstructure:"token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Retries         int           `mapstructure:"retries"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerOpen     time.Duration `mapstructure:"breaker_open"`
	BreakerInterval time.Duration `mapstructure:"breaker_interval"`
}

// CacheConfig selects the lift snapshot cache; an empty RedisAddr means in-memory.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	MapPollInterval time.Duration `mapstructure:"map_poll_interval"`
	ShutdownGrace   time.Duration `mapstructure:"shutdown_grace"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the gRPC health server
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Default() *Config {
	return &Config{
		Mode: "public",
		User: "monitor",
		Broker: BrokerConfig{
			URL:            "ws://localhost:15675/ws",
			User:           "guest",
			Password:       "guest",
			KeepAlive:      20 * time.Second,
			ConnectTimeout: 10 * time.Second,
			ReconnectDelay: 200 * time.Millisecond,
			ConnectRetries: 5,
			Buffer:         256,
		},
		Metadata: MetadataConfig{
			BaseURL:         "http://localhost:8080",
			Timeout:         5 * time.Second,
			Retries:         2,
			BreakerFailures: 3,
			BreakerOpen:     10 * time.Second,
			BreakerInterval: 60 * time.Second,
		},
		Cache: CacheConfig{TTL: 24 * time.Hour},
		HTTP: HTTPConfig{
			Addr:            ":8090",
			MapPollInterval: 250 * time.Millisecond,
			ShutdownGrace:   5 * time.Second,
		},
		GRPC:    GRPCConfig{Addr: ":50051"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// SetDefaults registers every default with v so env vars can override keys that
// appear in no file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("mode", d.Mode)
	v.SetDefault("operator_id", d.OperatorID)
	v.SetDefault("user", d.User)

	v.SetDefault("broker.url", d.Broker.URL)
	v.SetDefault("broker.user", d.Broker.User)
	v.SetDefault("broker.password", d.Broker.Password)
	v.SetDefault("broker.client_id", d.Broker.ClientID)
	v.SetDefault("broker.keep_alive", d.Broker.KeepAlive)
	v.SetDefault("broker.connect_timeout", d.Broker.ConnectTimeout)
	v.SetDefault("broker.reconnect_delay", d.Broker.ReconnectDelay)
	v.SetDefault("broker.connect_retries", d.Broker.ConnectRetries)
	v.SetDefault("broker.buffer", d.Broker.Buffer)

	v.SetDefault("metadata.base_url", d.Metadata.BaseURL)
	v.SetDefault("metadata.token", d.Metadata.Token)
	v.SetDefault("metadata.timeout", d.Metadata.Timeout)
	v.SetDefault("metadata.retries", d.Metadata.Retries)
	v.SetDefault("metadata.breaker_failures", d.Metadata.BreakerFailures)
	v.SetDefault("metadata.breaker_open", d.Metadata.BreakerOpen)
	v.SetDefault("metadata.breaker_interval", d.Metadata.BreakerInterval)

	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.map_poll_interval", d.HTTP.MapPollInterval)
	v.SetDefault("http.shutdown_grace", d.HTTP.ShutdownGrace)
	v.SetDefault("grpc.addr", d.GRPC.Addr)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads file (optional) and the environment into a validated Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case "public":
	case "operator":
		if c.OperatorID == "" {
			errs = append(errs, errors.New("operator mode needs operator_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("mode must be public or operator, got %q", c.Mode))
	}
	if c.Broker.URL == "" {
		errs = append(errs, errors.New("broker.url is required"))
	}
	if c.Broker.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("broker.reconnect_delay must be positive"))
	}
	if c.Metadata.BaseURL == "" {
		errs = append(errs, errors.New("metadata.base_url is required"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
