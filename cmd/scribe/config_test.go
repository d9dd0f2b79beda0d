package main

import (
	"testing"
	"time"

	"github.com/kbukum/scribe/languages"
	"github.com/kbukum/scribe/logger"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Name != "scribe" || cfg.Environment != "development" {
		t.Errorf("unexpected service config %+v", cfg.ServiceConfig)
	}
	if cfg.Transcription.Backend != "fake" || cfg.Translation.Backend != "fake" {
		t.Errorf("backends = %q/%q", cfg.Transcription.Backend, cfg.Translation.Backend)
	}
	if cfg.Transcription.Stride != 5*time.Second {
		t.Errorf("stride = %s", cfg.Transcription.Stride)
	}
	if cfg.Translation.SourceLanguage != languages.DefaultSource {
		t.Errorf("source = %q", cfg.Translation.SourceLanguage)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"stride too long", func(c *Config) { c.Transcription.Stride = 15 * time.Second }},
		{"negative stride", func(c *Config) { c.Transcription.Stride = -time.Second }},
		{"bad source language", func(c *Config) { c.Translation.SourceLanguage = "english" }},
		{"bad environment", func(c *Config) { c.Environment = "qa" }},
		{"unknown translation backend", func(c *Config) { c.Translation.Backend = "marian" }},
		{"ollama cannot transcribe", func(c *Config) { c.Transcription.Backend = "ollama" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestNewLoaders(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if _, _, err := newLoaders(cfg, logger.NewNop(), nil); err != nil {
		t.Fatalf("newLoaders: %v", err)
	}

	cfg.Translation.Backend = "marian"
	if _, _, err := newLoaders(cfg, logger.NewNop(), nil); err == nil {
		t.Error("expected unknown backend error")
	}
}
