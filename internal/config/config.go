package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Generation    GenerationConfig    `yaml:"generation"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port           int      `yaml:"port"`
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AudioConfig contains audio normalization parameters
type AudioConfig struct {
	SampleRate        int      `yaml:"sample_rate"`
	Channels          int      `yaml:"channels"`
	FFmpegPath        string   `yaml:"ffmpeg_path"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// TranscriptionConfig contains speech-to-text engine configuration
type TranscriptionConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Device       string `yaml:"device"`        // "auto", "cpu" or "cuda"
	ComputeType  string `yaml:"compute_type"`  // empty follows device choice
	DefaultModel string `yaml:"default_model"` // used when a request omits the model
	BatchSize    int    `yaml:"batch_size"`
	Timeout      int    `yaml:"timeout"` // seconds
}

// GenerationConfig contains text-generation (LLM) endpoint configuration
type GenerationConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	DefaultModel string  `yaml:"default_model"`
	Temperature  float64 `yaml:"temperature"`
	Timeout      int     `yaml:"timeout"` // seconds
	PromptPath   string  `yaml:"prompt_path"`
}

// StorageConfig contains on-disk storage locations
type StorageConfig struct {
	SessionsDir       string `yaml:"sessions_dir"`
	TranscriptionsDir string `yaml:"transcriptions_dir"`
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

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
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

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for the speech engine, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono) for the speech engine, got %d", a.Channels)
	}

	if len(a.AllowedExtensions) == 0 {
		return fmt.Errorf("allowed_extensions cannot be empty")
	}

	for _, ext := range a.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("allowed extension must start with a dot, got '%s'", ext)
		}
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	validDevices := map[string]bool{"": true, "auto": true, "cpu": true, "cuda": true}
	if !validDevices[t.Device] {
		return fmt.Errorf("device must be one of [auto, cpu, cuda], got '%s'", t.Device)
	}

	if t.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", t.BatchSize)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates generation configuration
func (g *GenerationConfig) Validate() error {
	if g.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if g.DefaultModel == "" {
		return fmt.Errorf("default_model cannot be empty")
	}

	if g.Temperature < 0 || g.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", g.Temperature)
	}

	if g.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", g.Timeout)
	}

	if g.PromptPath == "" {
		return fmt.Errorf("prompt_path cannot be empty")
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.SessionsDir == "" {
		return fmt.Errorf("sessions_dir cannot be empty")
	}

	if s.TranscriptionsDir == "" {
		return fmt.Errorf("transcriptions_dir cannot be empty")
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

// IsExtensionAllowed checks whether a file extension is on the upload allow-list.
// Comparison is case-insensitive.
func (a *AudioConfig) IsExtensionAllowed(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range a.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the generation timeout as a time.Duration
func (g *GenerationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}
