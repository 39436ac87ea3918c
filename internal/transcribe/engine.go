package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/brianhuynh125/MedScribeAI/internal/audio"
	"github.com/brianhuynh125/MedScribeAI/internal/config"
)

// ErrModelNotLoaded indicates Transcribe was called without a loaded handle.
// This is an internal sequencing bug, not a caller input problem.
var ErrModelNotLoaded = errors.New("no model loaded, call Load first")

// TranscriptionError wraps a failure of the underlying speech engine.
type TranscriptionError struct {
	Model string
	Err   error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription with model %s failed: %v", e.Model, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Segment is one recognized span of speech with its time bounds in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Recognizer is the speech-to-text backend contract: given a normalized
// mono 16 kHz audio file, return the ordered sequence of recognized segments.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string, batchSize int) ([]Segment, error)
}

// RecognizerFactory constructs a recognizer for a resolved model selection.
// Construction is the expensive step (server-side weight loading), which is
// why the engine caches the result per key.
type RecognizerFactory func(model, device, computeType string, batched bool) (Recognizer, error)

// Handle is an immutable reference to a loaded speech model. Handles are
// shared read-only across concurrent requests once constructed.
type Handle struct {
	Model       string
	Batched     bool
	Device      string
	ComputeType string

	recognizer Recognizer
}

type handleKey struct {
	model   string
	batched bool
	device  string
}

type handleEntry struct {
	once   sync.Once
	handle *Handle
	err    error
}

// Engine owns the cache of loaded model handles. A single long-lived Engine
// is constructed at startup and injected into whatever serves requests; the
// cache is never a package-level map.
type Engine struct {
	config     config.TranscriptionConfig
	normalizer *audio.Normalizer
	factory    RecognizerFactory
	logger     *slog.Logger

	mu      sync.Mutex
	handles map[handleKey]*handleEntry
}

// NewEngine creates a transcription engine using the HTTP recognizer backend.
func NewEngine(cfg config.TranscriptionConfig, normalizer *audio.Normalizer, logger *slog.Logger) *Engine {
	engine := &Engine{
		config:     cfg,
		normalizer: normalizer,
		logger:     logger,
		handles:    make(map[handleKey]*handleEntry),
	}
	engine.factory = func(model, device, computeType string, batched bool) (Recognizer, error) {
		return newWhisperClient(cfg.Endpoint, model, device, computeType, batched, cfg.GetTimeoutDuration())
	}
	return engine
}

// NewEngineWithFactory creates an engine with a custom recognizer factory.
func NewEngineWithFactory(cfg config.TranscriptionConfig, normalizer *audio.Normalizer, factory RecognizerFactory, logger *slog.Logger) *Engine {
	return &Engine{
		config:     cfg,
		normalizer: normalizer,
		factory:    factory,
		logger:     logger,
		handles:    make(map[handleKey]*handleEntry),
	}
}

// Load returns the cached handle for (model, batched, device), constructing
// it exactly once per process lifetime. Concurrent first loads for the same
// key block on a single construction. An empty model or device resolves to
// the configured defaults before keying the cache.
func (e *Engine) Load(ctx context.Context, model string, batched bool, device string) (*Handle, error) {
	device = e.resolveDevice(device)
	model = e.resolveModel(model, device)
	key := handleKey{model: model, batched: batched, device: device}

	e.mu.Lock()
	entry, ok := e.handles[key]
	if !ok {
		entry = &handleEntry{}
		e.handles[key] = entry
	}
	e.mu.Unlock()

	entry.once.Do(func() {
		computeType := e.resolveComputeType(device)

		e.logger.Info("Loading speech model",
			slog.String("model", model),
			slog.String("device", device),
			slog.String("compute_type", computeType),
			slog.Bool("batched", batched),
		)

		recognizer, err := e.factory(model, device, computeType, batched)
		if err != nil {
			entry.err = fmt.Errorf("failed to load model %s: %w", model, err)
			return
		}

		entry.handle = &Handle{
			Model:       model,
			Batched:     batched,
			Device:      device,
			ComputeType: computeType,
			recognizer:  recognizer,
		}
	})

	if entry.err != nil {
		// Drop the failed entry so a later request may retry the load.
		// Concurrent callers still share the single failed attempt.
		e.mu.Lock()
		if e.handles[key] == entry {
			delete(e.handles, key)
		}
		e.mu.Unlock()
		return nil, entry.err
	}
	return entry.handle, nil
}

// Transcribe converts an audio file to text using a loaded handle. The input
// is re-normalized defensively before recognition, which is a content no-op
// for already-normalized audio. Segment texts are joined in temporal order
// with single spaces.
func (e *Engine) Transcribe(ctx context.Context, handle *Handle, audioPath string) (string, error) {
	return e.transcribe(ctx, handle, audioPath, 0)
}

// TranscribeBatched runs batched recognition, trading latency for throughput
// on long audio. Output text follows the same contract as Transcribe.
func (e *Engine) TranscribeBatched(ctx context.Context, handle *Handle, audioPath string, batchSize int) (string, error) {
	if batchSize < 1 {
		batchSize = e.config.BatchSize
	}
	return e.transcribe(ctx, handle, audioPath, batchSize)
}

func (e *Engine) transcribe(ctx context.Context, handle *Handle, audioPath string, batchSize int) (string, error) {
	if handle == nil || handle.recognizer == nil {
		return "", ErrModelNotLoaded
	}

	monoPath, err := e.normalizer.Normalize(ctx, audioPath)
	if err != nil {
		return "", &TranscriptionError{Model: handle.Model, Err: err}
	}
	defer os.Remove(monoPath)

	segments, err := handle.recognizer.Recognize(ctx, monoPath, batchSize)
	if err != nil {
		return "", &TranscriptionError{Model: handle.Model, Err: err}
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	texts := make([]string, 0, len(segments))
	for _, segment := range segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			texts = append(texts, text)
		}
	}

	text := strings.Join(texts, " ")

	e.logger.Debug("Transcription completed",
		slog.String("model", handle.Model),
		slog.Int("segments", len(segments)),
		slog.Int("chars", len(text)),
	)

	return text, nil
}

// resolveDevice maps an empty or "auto" device request to the configured
// device, preferring accelerated hardware when it is present.
func (e *Engine) resolveDevice(device string) string {
	if device == "" || device == "auto" {
		device = e.config.Device
	}
	if device == "" || device == "auto" {
		if cudaAvailable() {
			return "cuda"
		}
		return "cpu"
	}
	return device
}

// resolveModel falls back to the configured default, then to a per-device
// default sized for the hardware.
func (e *Engine) resolveModel(model, device string) string {
	if model != "" {
		return model
	}
	if e.config.DefaultModel != "" {
		return e.config.DefaultModel
	}
	if device == "cuda" {
		return "medium.en"
	}
	return "tiny.en"
}

// resolveComputeType follows the device choice unless the configuration
// overrides it: higher precision on accelerated hardware, lower-memory
// precision on CPU.
func (e *Engine) resolveComputeType(device string) string {
	if e.config.ComputeType != "" {
		return e.config.ComputeType
	}
	if device == "cuda" {
		return "float16"
	}
	return "int8"
}

// cudaAvailable reports whether an NVIDIA device node is visible to this
// process.
func cudaAvailable() bool {
	if os.Getenv("CUDA_VISIBLE_DEVICES") != "" {
		return true
	}
	_, err := os.Stat("/dev/nvidia0")
	return err == nil
}
