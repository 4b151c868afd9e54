package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Session       SessionConfig       `yaml:"session"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Client        ClientConfig        `yaml:"client"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port         int    `yaml:"port"`
	Address      string `yaml:"address"`
	MaxChunkSize int    `yaml:"max_chunk_size"` // bytes
}

// SessionConfig contains server-side session reassembly parameters
type SessionConfig struct {
	WireSampleRate   int `yaml:"wire_sample_rate"`
	TargetSampleRate int `yaml:"target_sample_rate"`
	MaxAgeMinutes    int `yaml:"max_age_minutes"`
}

// TranscriptionConfig contains OpenAI API configuration
type TranscriptionConfig struct {
	APIKey          string `yaml:"api_key"` // falls back to OPENAI_API_KEY
	TranscribeModel string `yaml:"transcribe_model"`
	ProcessModel    string `yaml:"process_model"`
	Language        string `yaml:"language"`
	MaxTokens       int    `yaml:"max_tokens"`
	MaxConcurrent   int    `yaml:"max_concurrent"`
}

// ClientConfig contains recording-client parameters
type ClientConfig struct {
	Endpoint          string  `yaml:"endpoint"`
	InputSampleRate   int     `yaml:"input_sample_rate"`
	OutputSampleRate  int     `yaml:"output_sample_rate"`
	ChunkDuration     float64 `yaml:"chunk_duration"` // seconds
	UploadTimeout     int     `yaml:"upload_timeout"` // seconds
	MaxRetries        int     `yaml:"max_retries"`
	BackoffSeconds    float64 `yaml:"backoff_seconds"`
	VADEnabled        bool    `yaml:"vad_enabled"`
	VADThreshold      int     `yaml:"vad_threshold"`
	VADHoldoverFrames int     `yaml:"vad_holdover_frames"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if config.Transcription.APIKey == "" {
		config.Transcription.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// LoadClient reads the client section of a configuration file for the
// recording CLI. The server sections may be absent from the file.
func LoadClient(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Client.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	return &config.Client, nil
}

// Validate checks the server-side sections. The client section is validated
// separately by LoadClient, so a server deployment can omit it entirely.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.MaxChunkSize < 1024 {
		return fmt.Errorf("max_chunk_size must be at least 1024 bytes, got %d", h.MaxChunkSize)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.WireSampleRate != 8000 {
		return fmt.Errorf("wire_sample_rate must be 8000 Hz for mulaw transport, got %d", s.WireSampleRate)
	}

	if s.TargetSampleRate < s.WireSampleRate {
		return fmt.Errorf("target_sample_rate (%d) must be at least the wire rate (%d)",
			s.TargetSampleRate, s.WireSampleRate)
	}

	if s.MaxAgeMinutes < 1 {
		return fmt.Errorf("max_age_minutes must be at least 1, got %d", s.MaxAgeMinutes)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it or export OPENAI_API_KEY)")
	}

	if t.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative, got %d", t.MaxTokens)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates recording-client configuration. The endpoint may be
// empty here; the CLI requires one from either the file or its -e flag.
func (c *ClientConfig) Validate() error {
	if c.InputSampleRate < 8000 {
		return fmt.Errorf("input_sample_rate must be at least 8000 Hz, got %d", c.InputSampleRate)
	}

	if c.OutputSampleRate != 8000 {
		return fmt.Errorf("output_sample_rate must be 8000 Hz for mulaw transport, got %d", c.OutputSampleRate)
	}

	if c.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", c.ChunkDuration)
	}

	if c.UploadTimeout < 1 {
		return fmt.Errorf("upload_timeout must be at least 1 second, got %d", c.UploadTimeout)
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}

	if c.BackoffSeconds < 0 {
		return fmt.Errorf("backoff_seconds cannot be negative, got %f", c.BackoffSeconds)
	}

	if c.VADThreshold < 0 {
		return fmt.Errorf("vad_threshold cannot be negative, got %d", c.VADThreshold)
	}

	if c.VADHoldoverFrames < 0 {
		return fmt.Errorf("vad_holdover_frames cannot be negative, got %d", c.VADHoldoverFrames)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetMaxAgeDuration returns the session expiry age as a time.Duration
func (s *SessionConfig) GetMaxAgeDuration() time.Duration {
	return time.Duration(s.MaxAgeMinutes) * time.Minute
}

// GetChunkDuration returns the sealing cadence as a time.Duration
func (c *ClientConfig) GetChunkDuration() time.Duration {
	return time.Duration(c.ChunkDuration * float64(time.Second))
}

// GetUploadTimeoutDuration returns the upload timeout as a time.Duration
func (c *ClientConfig) GetUploadTimeoutDuration() time.Duration {
	return time.Duration(c.UploadTimeout) * time.Second
}

// GetBackoffDuration returns the retry backoff base as a time.Duration
func (c *ClientConfig) GetBackoffDuration() time.Duration {
	return time.Duration(c.BackoffSeconds * float64(time.Second))
}
