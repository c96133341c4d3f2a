package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the dialogue manager. It is
// loaded once at startup and never mutated.
type Config struct {
	BindAddr         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration
	Debug            bool

	BusURL      string
	DatabaseURL string

	SiteIDs     []string
	WakewordIDs []string

	SessionTimeout       time.Duration
	SpeechMinDuration    time.Duration
	SpeechCharsPerSecond float64
	ConfidenceFloor      *float64

	HotwordSendNotRecognized bool
	SoundOnSuperseded        bool
	SessionQueueLimit        int

	SoundsDir          string
	SoundsDisabled     []string
	SiteGroupSeparator string
	Volume             float64
	SiteVolumes        map[string]float64
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("PARLEY_BIND_ADDR", ":8130"),
		MetricsNamespace:     envOrDefault("PARLEY_METRICS_NAMESPACE", "parley"),
		BusURL:               strings.TrimSpace(os.Getenv("PARLEY_BUS_URL")),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SiteIDs:              listFromEnv("PARLEY_SITE_IDS"),
		WakewordIDs:          listFromEnv("PARLEY_WAKEWORD_IDS"),
		SoundsDir:            strings.TrimSpace(os.Getenv("PARLEY_SOUNDS_DIR")),
		SoundsDisabled:       listFromEnv("PARLEY_SOUNDS_DISABLED"),
		SiteGroupSeparator:   os.Getenv("PARLEY_SITE_GROUP_SEPARATOR"),
		ShutdownTimeout:      15 * time.Second,
		SessionTimeout:       30 * time.Second,
		SpeechMinDuration:    time.Second,
		SpeechCharsPerSecond: 25,
		Volume:               1.0,
		SessionQueueLimit:    8,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("PARLEY_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTimeout, err = durationFromEnv("PARLEY_SESSION_TIMEOUT", cfg.SessionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechMinDuration, err = durationFromEnv("PARLEY_SPEECH_MIN_DURATION", cfg.SpeechMinDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechCharsPerSecond, err = floatFromEnv("PARLEY_SPEECH_CHARS_PER_SECOND", cfg.SpeechCharsPerSecond)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfidenceFloor, err = optionalFloatFromEnv("PARLEY_CONFIDENCE_FLOOR")
	if err != nil {
		return Config{}, err
	}
	cfg.Volume, err = floatFromEnv("PARLEY_VOLUME", cfg.Volume)
	if err != nil {
		return Config{}, err
	}
	cfg.SiteVolumes, err = floatMapFromEnv("PARLEY_VOLUME_SITES")
	if err != nil {
		return Config{}, err
	}
	cfg.SessionQueueLimit, err = intFromEnv("PARLEY_SESSION_QUEUE_LIMIT", cfg.SessionQueueLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.HotwordSendNotRecognized, err = boolFromEnv("PARLEY_HOTWORD_SEND_NOT_RECOGNIZED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.SoundOnSuperseded, err = boolFromEnv("PARLEY_SOUND_ON_SUPERSEDED", false)
	if err != nil {
		return Config{}, err
	}
	cfg.Debug, err = boolFromEnv("PARLEY_DEBUG", false)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionTimeout < time.Second {
		return Config{}, fmt.Errorf("PARLEY_SESSION_TIMEOUT must be at least 1s")
	}
	if cfg.SpeechCharsPerSecond <= 0 {
		return Config{}, fmt.Errorf("PARLEY_SPEECH_CHARS_PER_SECOND must be positive")
	}
	if cfg.ConfidenceFloor != nil && (*cfg.ConfidenceFloor < 0 || *cfg.ConfidenceFloor > 1) {
		return Config{}, fmt.Errorf("PARLEY_CONFIDENCE_FLOOR must be in [0,1]")
	}
	if cfg.Volume < 0 || cfg.Volume > 1 {
		return Config{}, fmt.Errorf("PARLEY_VOLUME must be in [0,1]")
	}
	for site, v := range cfg.SiteVolumes {
		if v < 0 || v > 1 {
			return Config{}, fmt.Errorf("PARLEY_VOLUME_SITES: volume for %q must be in [0,1]", site)
		}
	}
	if cfg.SessionQueueLimit <= 0 {
		return Config{}, fmt.Errorf("PARLEY_SESSION_QUEUE_LIMIT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func optionalFloatFromEnv(key string) (*float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s parse error: %w", key, err)
	}
	return &f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

// listFromEnv parses a comma-separated list, dropping empty items.
func listFromEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// floatMapFromEnv parses "key=value,key=value" pairs.
func floatMapFromEnv(key string) (map[string]float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%s parse error: expected name=value, got %q", key, pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%s parse error for %q: %w", key, name, err)
		}
		out[strings.TrimSpace(name)] = f
	}
	return out, nil
}
