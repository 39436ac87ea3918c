package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the well-known local generation endpoint.
	DefaultEndpoint = "http://localhost:11434"
	// DefaultModel is used when no model is configured or requested.
	DefaultModel = "qwen3:4b-instruct"
)

// ServiceError indicates the text-generation endpoint could not be reached
// or replied with a non-2xx status. This is an infrastructure failure and is
// never swallowed, unlike malformed JSON in a successful reply.
type ServiceError struct {
	Endpoint string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("generation service %s failed: %v", e.Endpoint, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Note is the two-outcome result of structured note generation: either a
// parsed JSON object or, when the model reply could not be repaired into
// valid JSON, the raw reply text. Exactly one of the two is set.
type Note struct {
	Structured map[string]any
	Raw        string
}

// IsStructured reports whether the note carries a parsed JSON object.
func (n Note) IsStructured() bool { return n.Structured != nil }

// Value returns the content to persist: the parsed object when available,
// the raw text otherwise.
func (n Note) Value() any {
	if n.Structured != nil {
		return n.Structured
	}
	return n.Raw
}

// Config contains generation client configuration
type Config struct {
	Endpoint    string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client issues synchronous generation requests to an Ollama-style endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// generateRequest is the wire format of a generation request.
type generateRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Format  string `json:"format"`
	Options struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
	Stream bool `json:"stream"`
}

// generateResponse is the wire format of a generation reply.
type generateResponse struct {
	Response string `json:"response"`
}

// NewClient creates a new generation client
func NewClient(config Config, logger *slog.Logger) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}

	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Generate sends one synchronous request to the generation endpoint and
// recovers a structured note from the reply. An empty model falls back to
// the configured default. JSON output mode is requested from the endpoint,
// but the reply is still repaired defensively.
func (c *Client) Generate(ctx context.Context, promptText, model string) (Note, error) {
	if model == "" {
		model = c.config.Model
	}

	reqBody := generateRequest{
		Model:  model,
		Prompt: promptText,
		Format: "json",
		Stream: false,
	}
	reqBody.Options.Temperature = c.config.Temperature

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Note{}, &ServiceError{Endpoint: c.config.Endpoint, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	url := strings.TrimRight(c.config.Endpoint, "/") + "/api/generate"

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return Note{}, &ServiceError{Endpoint: c.config.Endpoint, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Note{}, &ServiceError{Endpoint: c.config.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Note{}, &ServiceError{Endpoint: c.config.Endpoint, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Note{}, &ServiceError{
			Endpoint: c.config.Endpoint,
			Err:      fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Note{}, &ServiceError{Endpoint: c.config.Endpoint, Err: fmt.Errorf("failed to parse response JSON: %w", err)}
	}

	return c.extractNote(parsed.Response), nil
}

// extractNote recovers a JSON object from possibly messy model output. If
// the text does not start with '{', the substring between the first '{' and
// the last '}' is tried. On any parse failure the original text is returned
// unmodified; malformed model output is a data-quality degradation the
// caller can still act on, never an error.
func (c *Client) extractNote(text string) Note {
	text = strings.TrimSpace(text)
	candidate := text

	if !strings.HasPrefix(candidate, "{") {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start != -1 && end != -1 && end > start {
			candidate = candidate[start : end+1]
		}
	}

	var structured map[string]any
	err := json.Unmarshal([]byte(candidate), &structured)
	if err == nil && structured == nil {
		// "null" parses into a nil map; treat it as unusable output.
		err = fmt.Errorf("response is not a JSON object")
	}
	if err != nil {
		c.logger.Warn("Model output is not valid JSON, returning raw text",
			slog.Int("chars", len(text)),
			slog.String("error", err.Error()),
		)
		return Note{Raw: text}
	}

	return Note{Structured: structured}
}
