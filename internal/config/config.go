package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL    string
	Port           string
	LogLevel       string
	LogFormat      string
	MetricsUser    string
	MetricsPass    string
	TriggerSecret  string
	ChallengesFile string
	Trending       Trending
	RateLimit      RateLimit
}

type Trending struct {
	Location      *time.Location
	Weekday       time.Weekday
	WindowStart   time.Duration
	WindowEnd     time.Duration
	AnchorWeekday time.Weekday
	TopN          int
	JobInterval   time.Duration
	Versions      map[string]string
}

type RateLimit struct {
	RPS   float64
	Burst int
}

// Load reads configuration from the environment, after loading a .env file
// when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		DatabaseURL:    env("DATABASE_URL", ""),
		Port:           env("PORT", "3333"),
		LogLevel:       env("LOG_LEVEL", "info"),
		LogFormat:      env("LOG_FORMAT", "text"),
		MetricsUser:    env("METRICS_USER", ""),
		MetricsPass:    env("METRICS_PASS", ""),
		TriggerSecret:  env("TRIGGER_SECRET", ""),
		ChallengesFile: env("CHALLENGES_FILE", ""),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	loc, err := time.LoadLocation(env("TRENDING_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRENDING_TIMEZONE: %w", err)
	}
	weekday, err := parseWeekday(env("TRENDING_WEEKDAY", "friday"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRENDING_WEEKDAY: %w", err)
	}
	anchor, err := parseWeekday(env("TRENDING_ANCHOR_WEEKDAY", weekday.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid TRENDING_ANCHOR_WEEKDAY: %w", err)
	}
	start, err := parseClock(env("TRENDING_WINDOW_START", "12:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRENDING_WINDOW_START: %w", err)
	}
	end, err := parseClock(env("TRENDING_WINDOW_END", "13:00"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRENDING_WINDOW_END: %w", err)
	}
	if end <= start {
		return nil, fmt.Errorf("TRENDING_WINDOW_END must be after TRENDING_WINDOW_START")
	}
	topN, err := strconv.Atoi(env("TRENDING_TOP_N", "5"))
	if err != nil || topN < 1 {
		return nil, fmt.Errorf("invalid TRENDING_TOP_N %q", getenv("TRENDING_TOP_N"))
	}
	interval, err := time.ParseDuration(env("TRENDING_JOB_INTERVAL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRENDING_JOB_INTERVAL: %w", err)
	}

	cfg.Trending = Trending{
		Location:      loc,
		Weekday:       weekday,
		WindowStart:   start,
		WindowEnd:     end,
		AnchorWeekday: anchor,
		TopN:          topN,
		JobInterval:   interval,
		Versions: map[string]string{
			"tracks":             env("TRENDING_VERSION_TRACKS", "ePWJD"),
			"underground_tracks": env("TRENDING_VERSION_UNDERGROUND", "ePWJD"),
			"playlists":          env("TRENDING_VERSION_PLAYLISTS", "BDNxn"),
		},
	}

	rps, err := strconv.ParseFloat(env("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	burst, err := strconv.Atoi(env("RATE_LIMIT_BURST", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}
	cfg.RateLimit = RateLimit{RPS: rps, Burst: burst}

	return cfg, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) || strings.EqualFold(d.String()[:3], s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// parseClock parses "HH:MM" into an offset from midnight. "24:00" is allowed
// as the end of a day.
func parseClock(s string) (time.Duration, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if hours < 0 || minutes < 0 || minutes > 59 || d > 24*time.Hour {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return d, nil
}
