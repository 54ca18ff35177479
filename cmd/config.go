package main

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=4000"`
	HealthPort           int           `env:"HEALTH_PORT,default=4001"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	ServiceName          string        `env:"SERVICE_NAME,default=chat-relay"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	MaxFrameBytes        int64         `env:"MAX_FRAME_BYTES,default=65536"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=5s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	BackoffBase          time.Duration `env:"BACKOFF_BASE,default=1s"`
	BackoffCap           time.Duration `env:"BACKOFF_CAP,default=30s"`
	BackoffMaxFailures   int           `env:"BACKOFF_MAX_FAILURES,default=5"`
	BackoffCooldown      time.Duration `env:"BACKOFF_COOLDOWN,default=5m"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	HealthInterval       time.Duration `env:"HEALTH_INTERVAL,default=10s"`
	RecentPostsLimit     int           `env:"RECENT_POSTS_LIMIT,default=20"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*"`
	RevokedPushTokens    string        `env:"REVOKED_PUSH_TOKENS"`
}

func splitList(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
}
