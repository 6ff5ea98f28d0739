package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the chat service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetime    time.Duration
	RedisURL             string
	NATSURL              string
	JWTSecret            string
	RealtimeChannelBase  string
	RealtimeSendBuffer   int
	RealtimePingInterval time.Duration
	UnreadCacheTTL       time.Duration
	MessagesPerMinute    int
	MessageMaxLength     int
	ShutdownTimeout      time.Duration
	CORSAllowOrigins     string
	AccessLog            bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Chat")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("realtime.channel_base", "chat")
	v.SetDefault("realtime.send_buffer", 32)
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("unread.cache_ttl", "10m")
	v.SetDefault("ratelimit.messages_per_minute", 60)
	v.SetDefault("message.max_length", 4000)
	v.SetDefault("shutdown.timeout", "5s")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("http.access_log", true)

	pingInterval, err := parseDuration(v, "realtime.ping_interval", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	unreadTTL, err := parseDuration(v, "unread.cache_ttl", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	connLifetime, err := parseDuration(v, "database.conn_max_lifetime", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	shutdownTimeout, err := parseDuration(v, "shutdown.timeout", 5*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		DBMaxOpenConns:       v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:       v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime:    connLifetime,
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		JWTSecret:            v.GetString("jwt.secret"),
		RealtimeChannelBase:  v.GetString("realtime.channel_base"),
		RealtimeSendBuffer:   v.GetInt("realtime.send_buffer"),
		RealtimePingInterval: pingInterval,
		UnreadCacheTTL:       unreadTTL,
		MessagesPerMinute:    v.GetInt("ratelimit.messages_per_minute"),
		MessageMaxLength:     v.GetInt("message.max_length"),
		ShutdownTimeout:      shutdownTimeout,
		CORSAllowOrigins:     v.GetString("cors.allow_origins"),
		AccessLog:            v.GetBool("http.access_log"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.RealtimeSendBuffer <= 0 {
		cfg.RealtimeSendBuffer = 32
	}

	if cfg.MessagesPerMinute <= 0 {
		cfg.MessagesPerMinute = 60
	}

	if cfg.MessageMaxLength <= 0 {
		cfg.MessageMaxLength = 4000
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return fallback, nil
	}
	return parsed, nil
}
