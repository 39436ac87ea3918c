package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// whisperClient reaches a faster-whisper style transcription server over
// HTTP. Audio is sent as a multipart file upload together with the model
// selection fields; the server replies with ordered JSON segments.
type whisperClient struct {
	endpoint    string
	model       string
	device      string
	computeType string
	batched     bool
	httpClient  *http.Client
}

// whisperResponse is the transcription server reply.
type whisperResponse struct {
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments"`
}

func newWhisperClient(endpoint, model, device, computeType string, batched bool, timeout time.Duration) (Recognizer, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &whisperClient{
		endpoint:    endpoint,
		model:       model,
		device:      device,
		computeType: computeType,
		batched:     batched,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Recognize uploads the audio file and returns the recognized segments.
func (c *whisperClient) Recognize(ctx context.Context, audioPath string, batchSize int) ([]Segment, error) {
	body, contentType, err := c.createMultipartRequest(audioPath, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed whisperResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return parsed.Segments, nil
}

// createMultipartRequest builds the multipart/form-data request body with
// the audio file and model selection fields.
func (c *whisperClient) createMultipartRequest(audioPath string, batchSize int) (io.Reader, string, error) {
	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(audioData); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"model":           c.model,
		"device":          c.device,
		"compute_type":    c.computeType,
		"response_format": "json",
	}

	if c.batched && batchSize > 0 {
		fields["batch_size"] = strconv.Itoa(batchSize)
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
