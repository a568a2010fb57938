package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig      `mapstructure:"http"`
	Log        LogConfig       `mapstructure:"log"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	Relay      RelayConfig     `mapstructure:"relay"`
	Watcher    WatcherConfig   `mapstructure:"watcher"`
	Token      TokenConfig     `mapstructure:"token"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RelayConfig struct {
	Capacity          int           `mapstructure:"capacity"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	Source            string        `mapstructure:"source"` // default producer tag
}

type WatcherConfig struct {
	Mode         string        `mapstructure:"mode"` // "poll" | "push"
	RelayURL     string        `mapstructure:"relay_url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RetryWait    time.Duration `mapstructure:"retry_wait"`
	MaxKeys      int           `mapstructure:"max_keys"`
	MaxHistory   int           `mapstructure:"max_history"`
	StatePrefix  string        `mapstructure:"state_prefix"`
}

type TokenConfig struct {
	PrimaryURL    string        `mapstructure:"primary_url"`
	SecondaryURL  string        `mapstructure:"secondary_url"`
	ClientID      string        `mapstructure:"client_id"`
	Tenant        string        `mapstructure:"tenant"`
	RefreshBuffer time.Duration `mapstructure:"refresh_buffer"`
	PrimaryTTL    time.Duration `mapstructure:"primary_ttl"`
	TimeoutMs     int           `mapstructure:"timeout_ms"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (RELAY_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (RELAY_*)
	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
