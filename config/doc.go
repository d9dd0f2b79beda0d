// Package config loads scribe configuration from a YAML file, a .env file and
// the process environment.
//
// Viper reads the YAML file first; every environment variable is then bound
// under its nested key variants so TRANSCRIPTION_MODEL overrides
// transcription.model. Structs embed ServiceConfig for the fields every
// binary needs:
//
//	type Config struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Transcription PipelineConfig `mapstructure:"transcription"`
//	}
//
//	var cfg Config
//	err := config.LoadConfig("scribe", &cfg)
package config
