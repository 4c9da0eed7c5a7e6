package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/Excellence-arch/anonchat-go/pkg/config"
	"github.com/Excellence-arch/anonchat-go/pkg/log"
)

type Config struct {
	API       APIConfig
	WebSocket WebSocketConfig
	Reconnect ReconnectConfig
	Typing    TypingConfig
	Reconcile ReconcileConfig
	Log       log.Config
}

type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
}

type WebSocketConfig struct {
	URL            string        `mapstructure:"url"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type ReconnectConfig struct {
	Base        time.Duration `mapstructure:"base"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type TypingConfig struct {
	Inactivity time.Duration `mapstructure:"inactivity"`
	InboundTTL time.Duration `mapstructure:"inbound_ttl"`
}

type ReconcileConfig struct {
	Window time.Duration `mapstructure:"window"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("api.base_url", "http://localhost:5000/api")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.page_size", 50)
	v.SetDefault("websocket.url", "ws://localhost:5000/ws")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("reconnect.base", "1s")
	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("typing.inactivity", "2s")
	v.SetDefault("typing.inbound_ttl", "6s")
	v.SetDefault("reconcile.window", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("api.base_url", "ANONCHAT_API_URL")
	v.BindEnv("websocket.url", "ANONCHAT_WS_URL")
	v.BindEnv("log.level", "ANONCHAT_LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.API.Timeout = parseDuration(v, "api.timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Reconnect.Base = parseDuration(v, "reconnect.base", time.Second)
	cfg.Typing.Inactivity = parseDuration(v, "typing.inactivity", 2*time.Second)
	cfg.Typing.InboundTTL = parseDuration(v, "typing.inbound_ttl", 6*time.Second)
	cfg.Reconcile.Window = parseDuration(v, "reconcile.window", 5*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
