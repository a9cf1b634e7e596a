package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings is the process configuration, loaded from environment variables
// (with .env support for local dev).
type Settings struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	Scope        string

	RateLimitRPM  int
	HTTPTimeout   time.Duration
	Categories    []string
	CategoryDelay time.Duration

	SnapshotsDir string

	// CacheCycle > 0 aligns leaderboard cache expiry to that cycle; zero
	// selects the daily 23:55 UTC cutoff.
	CacheCycle time.Duration

	R2Endpoint        string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
}

// Load reads settings from the environment. Credentials are required; every
// other field has a default.
func Load() (Settings, error) {
	// Load .env only for local dev
	_ = godotenv.Load()

	s := Settings{
		Username:          os.Getenv("IRACING_USERNAME"),
		Password:          os.Getenv("IRACING_PASSWORD"),
		ClientID:          getEnv("IRACING_CLIENT_ID", "ar-pwlimited"),
		ClientSecret:      os.Getenv("IRACING_CLIENT_SECRET"),
		Scope:             getEnv("IRACING_SCOPE", "iracing.auth"),
		RateLimitRPM:      getEnvInt("IRACING_RATE_LIMIT_RPM", 60),
		HTTPTimeout:       time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		Categories:        splitCategories(getEnv("CATEGORIES", "sports_car")),
		CategoryDelay:     time.Duration(getEnvInt("CATEGORY_FETCH_DELAY_SECONDS", 0)) * time.Second,
		SnapshotsDir:      getEnv("SNAPSHOTS_DIR", "data/snapshots"),
		CacheCycle:        time.Duration(getEnvInt("CACHE_CYCLE_HOURS", 0)) * time.Hour,
		R2Endpoint:        os.Getenv("R2_ENDPOINT"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:          getEnv("R2_BUCKET", "driverscout-snapshots"),
	}

	if s.Username == "" || s.Password == "" || s.ClientSecret == "" {
		return Settings{}, fmt.Errorf("IRACING_USERNAME, IRACING_PASSWORD and IRACING_CLIENT_SECRET must be set")
	}
	if len(s.Categories) == 0 {
		return Settings{}, fmt.Errorf("CATEGORIES must name at least one category")
	}

	return s, nil
}

// SupportsCategory reports whether category is one of the tracked categories.
func (s Settings) SupportsCategory(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCategories(raw string) []string {
	var categories []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			categories = append(categories, trimmed)
		}
	}
	return categories
}
