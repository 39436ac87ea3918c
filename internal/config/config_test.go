package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8000,
			Address: "0.0.0.0",
		},
		Audio: AudioConfig{
			SampleRate:        16000,
			Channels:          1,
			FFmpegPath:        "ffmpeg",
			AllowedExtensions: []string{".wav", ".webm"},
		},
		Transcription: TranscriptionConfig{
			Endpoint:     "http://localhost:9000/transcribe",
			Device:       "auto",
			DefaultModel: "small.en",
			BatchSize:    16,
			Timeout:      300,
		},
		Generation: GenerationConfig{
			Endpoint:     "http://localhost:11434",
			DefaultModel: "qwen3:4b-instruct",
			Temperature:  0.0,
			Timeout:      120,
			PromptPath:   "configs/note_structuring_prompt.txt",
		},
		Storage: StorageConfig{
			SessionsDir:       "notes",
			TranscriptionsDir: "transcriptions",
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
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "empty http address",
			mutate:      func(c *Config) { c.HTTP.Address = "" },
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
		{
			name:        "wrong sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 8000 },
			expectError: true,
			errorMsg:    "sample_rate must be 16000",
		},
		{
			name:        "stereo audio",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name:        "no allowed extensions",
			mutate:      func(c *Config) { c.Audio.AllowedExtensions = nil },
			expectError: true,
			errorMsg:    "allowed_extensions cannot be empty",
		},
		{
			name:        "extension without dot",
			mutate:      func(c *Config) { c.Audio.AllowedExtensions = []string{"wav"} },
			expectError: true,
			errorMsg:    "must start with a dot",
		},
		{
			name:        "empty transcription endpoint",
			mutate:      func(c *Config) { c.Transcription.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name:        "unknown device",
			mutate:      func(c *Config) { c.Transcription.Device = "tpu" },
			expectError: true,
			errorMsg:    "device must be one of",
		},
		{
			name:        "zero batch size",
			mutate:      func(c *Config) { c.Transcription.BatchSize = 0 },
			expectError: true,
			errorMsg:    "batch_size must be at least 1",
		},
		{
			name:        "negative temperature",
			mutate:      func(c *Config) { c.Generation.Temperature = -1 },
			expectError: true,
			errorMsg:    "temperature must be between 0 and 2",
		},
		{
			name:        "missing prompt path",
			mutate:      func(c *Config) { c.Generation.PromptPath = "" },
			expectError: true,
			errorMsg:    "prompt_path cannot be empty",
		},
		{
			name:        "missing sessions dir",
			mutate:      func(c *Config) { c.Storage.SessionsDir = "" },
			expectError: true,
			errorMsg:    "sessions_dir cannot be empty",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
http:
  port: 8000
  address: "0.0.0.0"
audio:
  sample_rate: 16000
  channels: 1
  ffmpeg_path: "ffmpeg"
  allowed_extensions: [".wav", ".webm"]
transcription:
  endpoint: "http://localhost:9000/transcribe"
  device: "auto"
  default_model: "small.en"
  batch_size: 16
  timeout: 300
generation:
  endpoint: "http://localhost:11434"
  default_model: "qwen3:4b-instruct"
  temperature: 0.0
  timeout: 120
  prompt_path: "configs/note_structuring_prompt.txt"
storage:
  sessions_dir: "notes"
  transcriptions_dir: "transcriptions"
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
http:
  port: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
http:
  port: 8000
  # missing address
`,
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestIsExtensionAllowed(t *testing.T) {
	audio := AudioConfig{AllowedExtensions: []string{".wav", ".webm"}}

	if !audio.IsExtensionAllowed(".wav") {
		t.Errorf("Expected .wav to be allowed")
	}

	if !audio.IsExtensionAllowed(".WEBM") {
		t.Errorf("Expected extension check to be case-insensitive")
	}

	if audio.IsExtensionAllowed(".mp3") {
		t.Errorf("Expected .mp3 to be rejected")
	}
}

func TestDurationHelpers(t *testing.T) {
	transcription := TranscriptionConfig{Timeout: 300}
	if transcription.GetTimeoutDuration() != 300*time.Second {
		t.Errorf("Expected 300 seconds, got %v", transcription.GetTimeoutDuration())
	}

	generation := GenerationConfig{Timeout: 120}
	if generation.GetTimeoutDuration() != 2*time.Minute {
		t.Errorf("Expected 2 minutes, got %v", generation.GetTimeoutDuration())
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr ||
		len(s) > len(substr) && findSubstring(s, substr))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
