// Package config provides configuration loading and validation for the dictation service.
// It handles YAML-based configuration with struct validation covering the HTTP API,
// audio normalization, transcription and generation endpoints, and storage locations.
package config
