package main

import (
	"time"

	"github.com/kbukum/scribe/backend/fake"
	"github.com/kbukum/scribe/backend/ollama"
	"github.com/kbukum/scribe/backend/whisper"
	"github.com/kbukum/scribe/config"
	"github.com/kbukum/scribe/languages"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/server"
	"github.com/kbukum/scribe/transcription"
	"github.com/kbukum/scribe/validation"
)

// Config is the scribe service configuration.
type Config struct {
	config.ServiceConfig `mapstructure:",squash"`

	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Telemetry     observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
	Transcription TranscriptionConfig  `yaml:"transcription" mapstructure:"transcription"`
	Translation   TranslationConfig    `yaml:"translation" mapstructure:"translation"`
}

// BackendConfig selects a registered backend and passes it options.
type BackendConfig struct {
	Backend string         `yaml:"backend" mapstructure:"backend"`
	Options map[string]any `yaml:"options" mapstructure:"options"`
}

// TranscriptionConfig configures the speech-to-text pipeline.
type TranscriptionConfig struct {
	BackendConfig `mapstructure:",squash"`
	Stride        time.Duration `yaml:"stride" mapstructure:"stride"`
}

// TranslationConfig configures the translation pipeline.
type TranslationConfig struct {
	BackendConfig  `mapstructure:",squash"`
	SourceLanguage string `yaml:"source_language" mapstructure:"source_language"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "scribe"
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	if c.Transcription.Backend == "" {
		c.Transcription.Backend = fake.Name
	}
	if c.Transcription.Stride == 0 {
		c.Transcription.Stride = 5 * time.Second
	}
	if c.Translation.Backend == "" {
		c.Translation.Backend = fake.Name
	}
	if c.Translation.SourceLanguage == "" {
		c.Translation.SourceLanguage = languages.DefaultSource
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	return validation.New().
		OneOf("transcription.backend", c.Transcription.Backend, []string{fake.Name, whisper.Name}).
		OneOf("translation.backend", c.Translation.Backend, []string{fake.Name, ollama.Name}).
		Custom(c.Transcription.Stride >= 0 && c.Transcription.Stride < transcription.ChunkLength/2,
			"transcription.stride", "must be within [0, 15s)").
		Custom(validation.IsLanguageCode(c.Translation.SourceLanguage),
			"translation.source_language", "must be a lang_Script code").
		Validate()
}
