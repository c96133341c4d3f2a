package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.BindAddr != ":8130" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.SessionTimeout != 30*time.Second {
		t.Fatalf("SessionTimeout = %s", cfg.SessionTimeout)
	}
	if cfg.SpeechCharsPerSecond != 25 {
		t.Fatalf("SpeechCharsPerSecond = %v", cfg.SpeechCharsPerSecond)
	}
	if cfg.ConfidenceFloor != nil {
		t.Fatalf("ConfidenceFloor = %v, want nil", *cfg.ConfidenceFloor)
	}
	if cfg.Volume != 1.0 || cfg.SessionQueueLimit != 8 {
		t.Fatalf("unexpected defaults: volume=%v queue=%d", cfg.Volume, cfg.SessionQueueLimit)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PARLEY_BIND_ADDR", ":9999")
	t.Setenv("PARLEY_SESSION_TIMEOUT", "45s")
	t.Setenv("PARLEY_CONFIDENCE_FLOOR", "0.6")
	t.Setenv("PARLEY_SITE_IDS", "kitchen, livingroom ,")
	t.Setenv("PARLEY_VOLUME_SITES", "kitchen=0.5,garage=0.25")
	t.Setenv("PARLEY_HOTWORD_SEND_NOT_RECOGNIZED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	if cfg.BindAddr != ":9999" || cfg.SessionTimeout != 45*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ConfidenceFloor == nil || *cfg.ConfidenceFloor != 0.6 {
		t.Fatalf("ConfidenceFloor = %v", cfg.ConfidenceFloor)
	}
	if len(cfg.SiteIDs) != 2 || cfg.SiteIDs[0] != "kitchen" || cfg.SiteIDs[1] != "livingroom" {
		t.Fatalf("SiteIDs = %v", cfg.SiteIDs)
	}
	if cfg.SiteVolumes["kitchen"] != 0.5 || cfg.SiteVolumes["garage"] != 0.25 {
		t.Fatalf("SiteVolumes = %v", cfg.SiteVolumes)
	}
	if !cfg.HotwordSendNotRecognized {
		t.Fatalf("HotwordSendNotRecognized not set")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"short timeout", "PARLEY_SESSION_TIMEOUT", "100ms"},
		{"bad duration", "PARLEY_SESSION_TIMEOUT", "soon"},
		{"zero chars per second", "PARLEY_SPEECH_CHARS_PER_SECOND", "0"},
		{"floor above one", "PARLEY_CONFIDENCE_FLOOR", "1.5"},
		{"floor not a number", "PARLEY_CONFIDENCE_FLOOR", "high"},
		{"volume above one", "PARLEY_VOLUME", "2"},
		{"site volume above one", "PARLEY_VOLUME_SITES", "kitchen=3"},
		{"site volume missing value", "PARLEY_VOLUME_SITES", "kitchen"},
		{"zero queue", "PARLEY_SESSION_QUEUE_LIMIT", "0"},
		{"bad bool", "PARLEY_DEBUG", "maybe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestBoolFromEnv(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "on", "Y"} {
		t.Setenv("PARLEY_TEST_BOOL", v)
		got, err := boolFromEnv("PARLEY_TEST_BOOL", false)
		if err != nil || !got {
			t.Fatalf("boolFromEnv(%q) = %v, %v", v, got, err)
		}
	}
	for _, v := range []string{"0", "false", "no", "off"} {
		t.Setenv("PARLEY_TEST_BOOL", v)
		got, err := boolFromEnv("PARLEY_TEST_BOOL", true)
		if err != nil || got {
			t.Fatalf("boolFromEnv(%q) = %v, %v", v, got, err)
		}
	}
}
