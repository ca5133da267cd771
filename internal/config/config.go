package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string
	OpsAddr    string

	RedisURL    string
	DatabaseURL string

	RatingK          float64
	RatingMin        float64
	RatingMax        float64
	RatingDefault    float64
	UpsetMultiplier  float64

	QueueSpreadDefault float64

	MatchGrace    time.Duration
	ValidateMoves bool

	MessageOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8090",
		OpsAddr:            ":8091",
		RatingK:            20,
		RatingMin:          100,
		RatingMax:          3500,
		RatingDefault:      1200,
		UpsetMultiplier:    2,
		QueueSpreadDefault: 200,
		MatchGrace:         10 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("OPS_ADDR")); v != "" {
		cfg.OpsAddr = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("RATING_K")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RatingK = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATING_MIN")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RatingMin = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATING_MAX")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RatingMax = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATING_DEFAULT")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RatingDefault = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("UPSET_MULTIPLIER")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			cfg.UpsetMultiplier = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_SPREAD_DEFAULT")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.QueueSpreadDefault = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_GRACE")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.MatchGrace = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("VALIDATE_MOVES")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ValidateMoves = b
		}
	}
	cfg.MessageOverrideDir = strings.TrimSpace(os.Getenv("MESSAGE_OVERRIDE_DIR"))

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.RatingMin >= cfg.RatingMax {
		return nil, errors.New("RATING_MIN must be below RATING_MAX")
	}

	return cfg, nil
}
