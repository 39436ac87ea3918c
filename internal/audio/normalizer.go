package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DecodeError indicates the input could not be parsed as audio.
type DecodeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode audio %s: %v: %s", e.Path, e.Err, e.Stderr)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TranscodeError indicates the external transcoding utility exited non-zero.
// Stderr carries the utility's diagnostic output so callers can surface it.
type TranscodeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("failed to transcode %s: %v: %s", e.Path, e.Err, e.Stderr)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Normalizer converts arbitrary audio files into the canonical format for
// the speech engine: single channel at a fixed sample rate.
type Normalizer struct {
	ffmpegPath string
	sampleRate int
	logger     *slog.Logger
}

// NewNormalizer creates a normalizer that invokes ffmpeg at ffmpegPath.
// An empty ffmpegPath resolves "ffmpeg" via PATH.
func NewNormalizer(ffmpegPath string, sampleRate int, logger *slog.Logger) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Normalizer{
		ffmpegPath: ffmpegPath,
		sampleRate: sampleRate,
		logger:     logger,
	}
}

// Normalize converts inputPath to mono audio at the configured sample rate,
// writing a sibling file in the same container. The input file is left in
// place. Normalizing an already-normalized file yields the same channel and
// rate properties, so downstream callers may re-normalize defensively.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	outputPath := base + "_mono16k" + ext

	stderr, err := n.runFFmpeg(ctx, inputPath, outputPath)
	if err != nil {
		return "", &DecodeError{Path: inputPath, Stderr: stderr, Err: err}
	}

	n.logger.Debug("Audio normalized",
		slog.String("input", inputPath),
		slog.String("output", outputPath),
		slog.Int("sample_rate", n.sampleRate),
	)

	return outputPath, nil
}

// Transcode converts a container the speech engine cannot decode natively
// (such as browser-recorded webm) into a WAV file at the canonical sample
// rate and channel count. The output path is a sibling of the input with a
// .wav extension.
func (n *Normalizer) Transcode(ctx context.Context, inputPath string) (string, error) {
	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".wav"

	stderr, err := n.runFFmpeg(ctx, inputPath, outputPath)
	if err != nil {
		return "", &TranscodeError{Path: inputPath, Stderr: stderr, Err: err}
	}

	n.logger.Debug("Audio transcoded",
		slog.String("input", inputPath),
		slog.String("output", outputPath),
	)

	return outputPath, nil
}

// runFFmpeg executes a single ffmpeg conversion with captured stderr.
// ffmpeg writes all diagnostics to stderr, which is returned for error
// reporting regardless of exit status.
func (n *Normalizer) runFFmpeg(ctx context.Context, inputPath, outputPath string) (string, error) {
	cmd := exec.CommandContext(ctx, n.ffmpegPath,
		"-y", "-i", inputPath,
		"-ac", "1",
		"-ar", strconv.Itoa(n.sampleRate),
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return strings.TrimSpace(stderr.String()), fmt.Errorf("ffmpeg: %w", err)
	}

	return strings.TrimSpace(stderr.String()), nil
}
