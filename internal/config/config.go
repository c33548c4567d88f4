package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all process configuration, loaded from the environment
// (optionally seeded from a .env file).
type Config struct {
	DatabaseURL string
	Port        string

	// Verifier gateway.
	FlyerAPIURL string
	FlyerAPIKey string

	// Outbound notification webhook (the chat gateway).
	NotifyWebhookURL string

	// Bcrypt hash of the key the chat gateway exchanges for a JWT.
	ServiceKeyHash string
	JWTSecret      string

	// Telegram ids allowed to resolve withdrawals.
	AdminIDs map[int64]bool

	// Reward amounts in quarter-star units.
	TaskRewardUnits    int64
	ReferralBonusUnits int64
	DailyBonusUnits    int64
	WithdrawMinUnits   int64

	CORSOrigins []string
}

// Load reads configuration from the environment. A missing .env file is not
// an error; a missing DATABASE_URL is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Port:               envOr("PORT", "8080"),
		FlyerAPIURL:        os.Getenv("FLYER_API_URL"),
		FlyerAPIKey:        os.Getenv("FLYER_API_KEY"),
		NotifyWebhookURL:   os.Getenv("NOTIFY_WEBHOOK_URL"),
		ServiceKeyHash:     os.Getenv("SERVICE_KEY_HASH"),
		JWTSecret:          envOr("JWT_SECRET", "supersecretdev"),
		TaskRewardUnits:    envInt("TASK_REWARD_UNITS", 1),
		ReferralBonusUnits: envInt("REFERRAL_BONUS_UNITS", 2),
		DailyBonusUnits:    envInt("DAILY_BONUS_UNITS", 1),
		WithdrawMinUnits:   envInt("WITHDRAW_MIN_UNITS", 60),
		CORSOrigins:        splitList(envOr("CORS_ORIGINS", "http://localhost:3000")),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	adminIDs, err := parseAdminIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.AdminIDs = adminIDs

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAdminIDs(s string) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_IDS: invalid id %q", part)
		}
		ids[id] = true
	}
	return ids, nil
}
