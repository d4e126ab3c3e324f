package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string
	HTTPPort  int
	GRPCPort  int

	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string
	AMQPURL     string
	JWTSecret   string

	IdempotencyTTL       time.Duration
	OutboxPollInterval   time.Duration
	OutboxFlushBatchSize int
	SweepInterval        time.Duration
	WarningWindow        time.Duration

	PlatformFeeBps     int64
	ProcessingFeeBps   int64
	ProcessingFeeFixed int64
	DisputeFee         int64
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		DatabaseURL string `yaml:"database_url"`
		MaxDBConns  int    `yaml:"max_db_conns"`
		RedisURL    string `yaml:"redis_url"`
		AMQPURL     string `yaml:"amqp_url"`
	} `yaml:"dependencies"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Escrow struct {
		SweepIntervalMinutes int   `yaml:"sweep_interval_minutes"`
		WarningWindowHours   int   `yaml:"warning_window_hours"`
		PlatformFeeBps       int64 `yaml:"platform_fee_bps"`
		ProcessingFeeBps     int64 `yaml:"processing_fee_bps"`
		ProcessingFeeFixed   int64 `yaml:"processing_fee_fixed"`
		DisputeFee           int64 `yaml:"dispute_fee"`
	} `yaml:"escrow"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "ContraLock-Escrow-Engine",
		HTTPPort:             8080,
		GRPCPort:             9090,
		MaxDBConns:           16,
		IdempotencyTTL:       7 * 24 * time.Hour,
		OutboxPollInterval:   2 * time.Second,
		OutboxFlushBatchSize: 100,
		SweepInterval:        time.Hour,
		WarningWindow:        24 * time.Hour,
		PlatformFeeBps:       1000,
		ProcessingFeeBps:     290,
		ProcessingFeeFixed:   30,
		DisputeFee:           2500,
	}
	if raw, err := os.ReadFile(path); err == nil {
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		cfg.DatabaseURL = f.Dependencies.DatabaseURL
		if f.Dependencies.MaxDBConns > 0 {
			cfg.MaxDBConns = int32(f.Dependencies.MaxDBConns)
		}
		cfg.RedisURL = f.Dependencies.RedisURL
		cfg.AMQPURL = f.Dependencies.AMQPURL
		cfg.JWTSecret = f.Auth.JWTSecret
		if f.Escrow.SweepIntervalMinutes > 0 {
			cfg.SweepInterval = time.Duration(f.Escrow.SweepIntervalMinutes) * time.Minute
		}
		if f.Escrow.WarningWindowHours > 0 {
			cfg.WarningWindow = time.Duration(f.Escrow.WarningWindowHours) * time.Hour
		}
		if f.Escrow.PlatformFeeBps > 0 {
			cfg.PlatformFeeBps = f.Escrow.PlatformFeeBps
		}
		if f.Escrow.ProcessingFeeBps > 0 {
			cfg.ProcessingFeeBps = f.Escrow.ProcessingFeeBps
		}
		if f.Escrow.ProcessingFeeFixed > 0 {
			cfg.ProcessingFeeFixed = f.Escrow.ProcessingFeeFixed
		}
		if f.Escrow.DisputeFee > 0 {
			cfg.DisputeFee = f.Escrow.DisputeFee
		}
	}

	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.AMQPURL = envOrDefault("AMQP_URL", cfg.AMQPURL)
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("MAX_DB_CONNS", int(cfg.MaxDBConns)))
	cfg.IdempotencyTTL = time.Duration(envInt("IDEMPOTENCY_TTL_HOURS", int(cfg.IdempotencyTTL.Hours()))) * time.Hour
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxFlushBatchSize = envInt("OUTBOX_FLUSH_BATCH_SIZE", cfg.OutboxFlushBatchSize)
	cfg.SweepInterval = time.Duration(envInt("SWEEP_INTERVAL_MINUTES", int(cfg.SweepInterval.Minutes()))) * time.Minute
	cfg.WarningWindow = time.Duration(envInt("WARNING_WINDOW_HOURS", int(cfg.WarningWindow.Hours()))) * time.Hour
	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
