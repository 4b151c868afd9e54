package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:         8080,
			Address:      "0.0.0.0",
			MaxChunkSize: 1 << 20,
		},
		Session: SessionConfig{
			WireSampleRate:   8000,
			TargetSampleRate: 16000,
			MaxAgeMinutes:    30,
		},
		Transcription: TranscriptionConfig{
			APIKey:        "test-key",
			MaxConcurrent: 10,
		},
		Client: ClientConfig{
			Endpoint:          "https://scribe.example.com",
			InputSampleRate:   44100,
			OutputSampleRate:  8000,
			ChunkDuration:     30.0,
			UploadTimeout:     30,
			MaxRetries:        3,
			BackoffSeconds:    2.0,
			VADEnabled:        true,
			VADThreshold:      500,
			VADHoldoverFrames: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(*Config) {},
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between",
		},
		{
			name:        "wrong wire rate",
			mutate:      func(c *Config) { c.Session.WireSampleRate = 44100 },
			expectError: true,
			errorMsg:    "wire_sample_rate must be 8000",
		},
		{
			name:        "target rate below wire rate",
			mutate:      func(c *Config) { c.Session.TargetSampleRate = 4000 },
			expectError: true,
			errorMsg:    "target_sample_rate",
		},
		{
			name:        "missing api key",
			mutate:      func(c *Config) { c.Transcription.APIKey = "" },
			expectError: true,
			errorMsg:    "api_key cannot be empty",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q does not contain %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestClientConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*ClientConfig)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid client section",
			mutate: func(*ClientConfig) {},
		},
		{
			name: "empty endpoint is allowed",
			// The -e flag or SCRIBE_ENDPOINT can supply it instead.
			mutate: func(c *ClientConfig) { c.Endpoint = "" },
		},
		{
			name:        "input rate below wire rate",
			mutate:      func(c *ClientConfig) { c.InputSampleRate = 4000 },
			expectError: true,
			errorMsg:    "input_sample_rate must be at least 8000",
		},
		{
			name:        "wrong output rate",
			mutate:      func(c *ClientConfig) { c.OutputSampleRate = 16000 },
			expectError: true,
			errorMsg:    "output_sample_rate must be 8000",
		},
		{
			name:        "zero chunk duration",
			mutate:      func(c *ClientConfig) { c.ChunkDuration = 0 },
			expectError: true,
			errorMsg:    "chunk_duration must be positive",
		},
		{
			name:        "zero retry budget",
			mutate:      func(c *ClientConfig) { c.MaxRetries = 0 },
			expectError: true,
			errorMsg:    "max_retries must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig().Client
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q does not contain %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
http:
  port: 8080
  address: "0.0.0.0"
  max_chunk_size: 1048576
session:
  wire_sample_rate: 8000
  target_sample_rate: 16000
  max_age_minutes: 30
transcription:
  api_key: "file-key"
  max_concurrent: 10
client:
  endpoint: "https://scribe.example.com"
  input_sample_rate: 44100
  output_sample_rate: 8000
  chunk_duration: 30.0
  upload_timeout: 30
  max_retries: 3
  backoff_seconds: 2.0
  vad_enabled: true
  vad_threshold: 500
  vad_holdover_frames: 15
logging:
  level: "info"
  format: "json"
  output: "stdout"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Transcription.APIKey != "file-key" {
		t.Errorf("api key = %q", cfg.Transcription.APIKey)
	}
	if cfg.Client.InputSampleRate != 44100 {
		t.Errorf("input sample rate = %d", cfg.Client.InputSampleRate)
	}
	if !cfg.Client.VADEnabled {
		t.Error("vad_enabled not parsed")
	}
}

// The server must boot from a file with no client section at all.
func TestLoadWithoutClientSection(t *testing.T) {
	yaml := `
http:
  port: 8080
  address: "0.0.0.0"
  max_chunk_size: 1048576
session:
  wire_sample_rate: 8000
  target_sample_rate: 16000
  max_age_minutes: 30
transcription:
  api_key: "file-key"
  max_concurrent: 10
logging:
  level: "info"
  format: "json"
  output: "stdout"
`
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err != nil {
		t.Fatalf("Load failed on a server-only config: %v", err)
	}
}

func TestLoadClient(t *testing.T) {
	yaml := `
client:
  endpoint: "https://scribe.example.com"
  input_sample_rate: 44100
  output_sample_rate: 8000
  chunk_duration: 15.0
  upload_timeout: 10
  max_retries: 2
  backoff_seconds: 1.5
  vad_enabled: true
  vad_threshold: 600
  vad_holdover_frames: 20
`
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cc, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}

	if cc.Endpoint != "https://scribe.example.com" {
		t.Errorf("endpoint = %q", cc.Endpoint)
	}
	if cc.GetChunkDuration() != 15*time.Second {
		t.Errorf("GetChunkDuration = %v", cc.GetChunkDuration())
	}
	if cc.GetUploadTimeoutDuration() != 10*time.Second {
		t.Errorf("GetUploadTimeoutDuration = %v", cc.GetUploadTimeoutDuration())
	}
	if cc.GetBackoffDuration() != 1500*time.Millisecond {
		t.Errorf("GetBackoffDuration = %v", cc.GetBackoffDuration())
	}
	if cc.VADThreshold != 600 || cc.VADHoldoverFrames != 20 {
		t.Errorf("VAD tuning = (%d, %d)", cc.VADThreshold, cc.VADHoldoverFrames)
	}
}

func TestLoadClientRejectsBadSection(t *testing.T) {
	yaml := `
client:
  endpoint: "https://scribe.example.com"
  input_sample_rate: 44100
  output_sample_rate: 44100
  chunk_duration: 30.0
  upload_timeout: 30
  max_retries: 3
`
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadClient(path); err == nil {
		t.Error("expected error for non-8000 output rate")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("http: ["), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := validConfig()

	if got := cfg.Session.GetMaxAgeDuration(); got != 30*time.Minute {
		t.Errorf("GetMaxAgeDuration = %v", got)
	}
	if got := cfg.Client.GetChunkDuration(); got != 30*time.Second {
		t.Errorf("GetChunkDuration = %v", got)
	}
	if got := cfg.Client.GetUploadTimeoutDuration(); got != 30*time.Second {
		t.Errorf("GetUploadTimeoutDuration = %v", got)
	}
	if got := cfg.Client.GetBackoffDuration(); got != 2*time.Second {
		t.Errorf("GetBackoffDuration = %v", got)
	}
}
