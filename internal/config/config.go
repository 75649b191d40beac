package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	// Secret signs the session cookie.
	Secret string `mapstructure:"secret"`

	Log       LogConfig       `mapstructure:"log"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Room      RoomConfig      `mapstructure:"room"`
	Chat      ChatConfig      `mapstructure:"chat"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type WebSocketConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StoreConfig.Driver is one of memory, sqlite, postgres, mysql, mongo.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	FilePath        string        `mapstructure:"file_path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Debug           bool          `mapstructure:"debug"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type RoomConfig struct {
	CodeRetries   int           `mapstructure:"code_retries"`
	AwayGrace     time.Duration `mapstructure:"away_grace"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// Backpressure is kick or drop.
	Backpressure string        `mapstructure:"backpressure"`
	CreateLimit  int           `mapstructure:"create_limit"`
	CreateWindow time.Duration `mapstructure:"create_window"`
}

type ChatConfig struct {
	HistorySize int           `mapstructure:"history_size"`
	HistoryTTL  time.Duration `mapstructure:"history_ttl"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("websocket.read_limit", 32768)
	v.SetDefault("websocket.ping_period", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "5s")
	v.SetDefault("websocket.send_buffer", 32)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.timeout", "15s")

	v.SetDefault("store.driver", "memory")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "watchparty.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "watchparty")
	v.SetDefault("mongo.timeout", "10s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "watchparty")
	v.SetDefault("redis.cache_ttl", "5m")

	v.SetDefault("room.code_retries", 10)
	v.SetDefault("room.away_grace", "60s")
	v.SetDefault("room.idle_ttl", "24h")
	v.SetDefault("room.sweep_interval", "15s")
	v.SetDefault("room.backpressure", "kick")
	v.SetDefault("room.create_limit", 5)
	v.SetDefault("room.create_window", "1m")

	v.SetDefault("chat.history_size", 50)
	v.SetDefault("chat.history_ttl", "24h")
	v.SetDefault("chat.rate_limit", 5)
	v.SetDefault("chat.rate_window", "5s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, then lets env vars override
// any key (room.away_grace -> ROOM_AWAY_GRACE). A .env file is honored.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Bool("redis", cfg.Redis.Enabled).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "mysql", "mongo":
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Room.SweepInterval <= 0 {
		return errors.New("room.sweep_interval must be positive")
	}
	if c.Room.CodeRetries < 1 {
		return errors.New("room.code_retries must be positive")
	}
	switch c.Room.Backpressure {
	case "kick", "drop":
	default:
		return fmt.Errorf("unsupported room.backpressure: %q", c.Room.Backpressure)
	}
	if c.Chat.HistorySize < 0 {
		return errors.New("chat.history_size must not be negative")
	}
	return nil
}
