package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brianhuynh125/MedScribeAI/internal/audio"
	"github.com/brianhuynh125/MedScribeAI/internal/config"
	"github.com/brianhuynh125/MedScribeAI/internal/generate"
	"github.com/brianhuynh125/MedScribeAI/internal/metrics"
	"github.com/brianhuynh125/MedScribeAI/internal/prompt"
	"github.com/brianhuynh125/MedScribeAI/internal/session"
	"github.com/brianhuynh125/MedScribeAI/internal/transcribe"
)

// ValidationError is a client-input problem: unsupported audio container or
// an unknown session. The message is safe to surface verbatim to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Request carries one dictation upload through the pipeline.
type Request struct {
	Audio       []byte
	Filename    string
	SessionID   string
	SpeechModel string
	LLMModel    string
	Batched     bool
	BatchSize   int
}

// Result is the outcome of a completed pipeline run.
type Result struct {
	Transcript string
	Note       generate.Note
}

// Orchestrator composes the pipeline stages and owns per-request scratch
// resources. It is safe for concurrent use; requests share only the model
// handle cache and the session store.
type Orchestrator struct {
	audioConfig config.AudioConfig
	normalizer  *audio.Normalizer
	engine      *transcribe.Engine
	generator   *generate.Client
	store       *session.Store
	promptPath  string
	metrics     *metrics.Metrics
	logger      *slog.Logger

	transcriptionsDir string
}

// New creates a pipeline orchestrator.
func New(
	cfg *config.Config,
	normalizer *audio.Normalizer,
	engine *transcribe.Engine,
	generator *generate.Client,
	store *session.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		audioConfig:       cfg.Audio,
		normalizer:        normalizer,
		engine:            engine,
		generator:         generator,
		store:             store,
		promptPath:        cfg.Generation.PromptPath,
		metrics:           m,
		logger:            logger,
		transcriptionsDir: cfg.Storage.TranscriptionsDir,
	}
}

// Process runs the full dictation-to-structured-note flow: validate and
// stage the upload, transcode and normalize, transcribe, compose the prompt
// from the target session's current content, generate the structured note,
// and merge it back into the session. The scratch directory is released on
// every exit path.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	o.metrics.RecordPipelineStart()

	result, stage, err := o.process(ctx, req)
	if err != nil {
		o.metrics.RecordPipelineFailure(stage, time.Since(start).Seconds())
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			o.metrics.RecordValidationFailure()
		}
		return nil, err
	}

	o.metrics.RecordPipelineSuccess(time.Since(start).Seconds())
	return result, nil
}

func (o *Orchestrator) process(ctx context.Context, req Request) (*Result, string, error) {
	if req.SessionID == "" {
		return nil, "validate", &ValidationError{Message: "missing session id"}
	}

	scratchDir, cleanup, err := o.acquireScratch()
	if err != nil {
		return nil, "scratch", err
	}
	defer cleanup()

	audioPath, err := o.stageUpload(ctx, scratchDir, req.Audio, req.Filename)
	if err != nil {
		return nil, "audio", err
	}

	transcript, err := o.transcribeStaged(ctx, audioPath, req.SpeechModel, req.Batched, req.BatchSize)
	if err != nil {
		return nil, "transcribe", err
	}

	o.logger.Info("Transcription completed",
		slog.String("session_id", req.SessionID),
		slog.Int("chars", len(transcript)),
	)

	record, err := o.store.Get(req.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, "session", &ValidationError{Message: fmt.Sprintf("Session %s not found", req.SessionID)}
		}
		return nil, "session", err
	}

	templateJSON, err := encodeTemplate(record.Content())
	if err != nil {
		return nil, "session", err
	}

	promptText, err := prompt.Compose(o.promptPath, transcript, templateJSON)
	if err != nil {
		return nil, "prompt", err
	}

	generationStart := time.Now()
	note, err := o.generator.Generate(ctx, promptText, req.LLMModel)
	if err != nil {
		return nil, "generate", err
	}
	o.metrics.RecordGeneration(time.Since(generationStart).Seconds())

	if !note.IsStructured() {
		o.metrics.RecordMalformedNote()
		o.logger.Warn("Structured note degraded to raw text",
			slog.String("session_id", req.SessionID),
		)
	}

	// Reload fresh immediately before writing: the transcription and
	// generation stages run for seconds, and the session may have been
	// edited meanwhile. The record read above is only the template source.
	if err := o.store.UpdateContent(req.SessionID, note.Value()); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, "session", &ValidationError{Message: fmt.Sprintf("Session %s not found", req.SessionID)}
		}
		return nil, "session", err
	}
	o.metrics.RecordSessionSaved()

	o.logger.Info("Session updated with structured note",
		slog.String("session_id", req.SessionID),
		slog.Bool("structured", note.IsStructured()),
	)

	return &Result{Transcript: transcript, Note: note}, "", nil
}

// Transcribe runs the transcription-only flow used by the plain transcribe
// endpoint: stage, transcode, normalize, transcribe, then archive the
// transcript under the transcriptions directory keyed by the upload name.
func (o *Orchestrator) Transcribe(ctx context.Context, audioData []byte, filename, speechModel string, batched bool, batchSize int) (string, error) {
	start := time.Now()
	o.metrics.RecordPipelineStart()

	transcript, err := o.transcribeOnly(ctx, audioData, filename, speechModel, batched, batchSize)
	if err != nil {
		o.metrics.RecordPipelineFailure("transcribe", time.Since(start).Seconds())
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			o.metrics.RecordValidationFailure()
		}
		return "", err
	}

	o.metrics.RecordPipelineSuccess(time.Since(start).Seconds())
	return transcript, nil
}

func (o *Orchestrator) transcribeOnly(ctx context.Context, audioData []byte, filename, speechModel string, batched bool, batchSize int) (string, error) {
	scratchDir, cleanup, err := o.acquireScratch()
	if err != nil {
		return "", err
	}
	defer cleanup()

	audioPath, err := o.stageUpload(ctx, scratchDir, audioData, filename)
	if err != nil {
		return "", err
	}

	transcript, err := o.transcribeStaged(ctx, audioPath, speechModel, batched, batchSize)
	if err != nil {
		return "", err
	}

	if err := o.archiveTranscript(filename, transcript); err != nil {
		// The transcript is already produced; archiving is best effort.
		o.logger.Warn("Failed to archive transcript",
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
	}

	return transcript, nil
}

// acquireScratch creates the request-scoped scratch directory and returns
// its release function. Scratch space is never shared across requests.
func (o *Orchestrator) acquireScratch() (string, func(), error) {
	scratchDir, err := os.MkdirTemp("", "scribe-"+uuid.New().String())
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			o.logger.Error("Failed to remove scratch directory",
				slog.String("path", scratchDir),
				slog.String("error", err.Error()),
			)
		}
	}

	return scratchDir, cleanup, nil
}

// stageUpload validates the upload extension against the allow-list, writes
// the bytes into the scratch directory, and transcodes non-WAV containers.
func (o *Orchestrator) stageUpload(ctx context.Context, scratchDir string, audioData []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !o.audioConfig.IsExtensionAllowed(ext) {
		return "", &ValidationError{
			Message: fmt.Sprintf("Only %s files are supported.", strings.Join(o.audioConfig.AllowedExtensions, " or ")),
		}
	}

	if len(audioData) == 0 {
		return "", &ValidationError{Message: "empty audio upload"}
	}

	audioPath := filepath.Join(scratchDir, "upload"+ext)
	if err := os.WriteFile(audioPath, audioData, 0644); err != nil {
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}

	stageStart := time.Now()

	if ext != ".wav" {
		wavPath, err := o.normalizer.Transcode(ctx, audioPath)
		if err != nil {
			return "", err
		}
		os.Remove(audioPath)
		audioPath = wavPath
	}

	monoPath, err := o.normalizer.Normalize(ctx, audioPath)
	if err != nil {
		return "", err
	}
	o.metrics.RecordTranscode(time.Since(stageStart).Seconds())

	return monoPath, nil
}

// transcribeStaged loads (or reuses) the model handle and transcribes the
// staged audio.
func (o *Orchestrator) transcribeStaged(ctx context.Context, audioPath, speechModel string, batched bool, batchSize int) (string, error) {
	handle, err := o.engine.Load(ctx, speechModel, batched, "")
	if err != nil {
		return "", err
	}

	transcriptionStart := time.Now()

	var transcript string
	if batched {
		transcript, err = o.engine.TranscribeBatched(ctx, handle, audioPath, batchSize)
	} else {
		transcript, err = o.engine.Transcribe(ctx, handle, audioPath)
	}
	if err != nil {
		return "", err
	}

	o.metrics.RecordTranscription(time.Since(transcriptionStart).Seconds())
	return transcript, nil
}

// archiveTranscript writes the transcript next to earlier ones and refreshes
// the latest-transcription file.
func (o *Orchestrator) archiveTranscript(filename, transcript string) error {
	if err := os.MkdirAll(o.transcriptionsDir, 0755); err != nil {
		return fmt.Errorf("failed to create transcriptions directory: %w", err)
	}

	archivePath := filepath.Join(o.transcriptionsDir, filepath.Base(filename)+".txt")
	if err := os.WriteFile(archivePath, []byte(transcript), 0644); err != nil {
		return fmt.Errorf("failed to write transcript archive: %w", err)
	}

	latestPath := filepath.Join(o.transcriptionsDir, "latest_transcription")
	if err := os.WriteFile(latestPath, []byte(transcript), 0644); err != nil {
		return fmt.Errorf("failed to write latest transcript: %w", err)
	}

	return nil
}

// encodeTemplate serializes the session's current content for placeholder
// substitution. A session without content yields an empty object.
func encodeTemplate(content any) (string, error) {
	if content == nil {
		return "{}", nil
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode note template: %w", err)
	}

	return string(data), nil
}
