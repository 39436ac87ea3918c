package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeWhisperTestAudio(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dictation.wav")
	if err := os.WriteFile(path, []byte("fake audio payload"), 0644); err != nil {
		t.Fatalf("Failed to write test audio: %v", err)
	}
	return path
}

func TestWhisperClientRecognize(t *testing.T) {
	var gotModel, gotComputeType, gotBatchSize string
	var gotFileBytes int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		gotModel = r.FormValue("model")
		gotComputeType = r.FormValue("compute_type")
		gotBatchSize = r.FormValue("batch_size")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file field: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		buf := make([]byte, 64)
		n, _ := file.Read(buf)
		gotFileBytes = n

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(whisperResponse{
			Language: "en",
			Duration: 3.5,
			Segments: []Segment{
				{Start: 0.0, End: 2.0, Text: "patient reports"},
				{Start: 2.0, End: 3.5, Text: "steady recovery"},
			},
		})
	}))
	defer server.Close()

	client, err := newWhisperClient(server.URL, "small.en", "cpu", "int8", true, 30*time.Second)
	if err != nil {
		t.Fatalf("newWhisperClient failed: %v", err)
	}

	segments, err := client.Recognize(context.Background(), writeWhisperTestAudio(t), 8)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}

	if segments[0].Text != "patient reports" {
		t.Errorf("Unexpected first segment: %+v", segments[0])
	}

	if gotModel != "small.en" {
		t.Errorf("Expected model field small.en, got '%s'", gotModel)
	}

	if gotComputeType != "int8" {
		t.Errorf("Expected compute_type field int8, got '%s'", gotComputeType)
	}

	if gotBatchSize != "8" {
		t.Errorf("Expected batch_size field 8, got '%s'", gotBatchSize)
	}

	if gotFileBytes == 0 {
		t.Error("Expected audio file content to be uploaded")
	}
}

func TestWhisperClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model load failed", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := newWhisperClient(server.URL, "small.en", "cpu", "int8", false, 30*time.Second)
	if err != nil {
		t.Fatalf("newWhisperClient failed: %v", err)
	}

	_, err = client.Recognize(context.Background(), writeWhisperTestAudio(t), 0)
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}

	if !strings.Contains(err.Error(), "HTTP error 500") {
		t.Errorf("Expected HTTP status in error, got: %v", err)
	}
}

func TestWhisperClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client, err := newWhisperClient(server.URL, "small.en", "cpu", "int8", false, time.Second)
	if err != nil {
		t.Fatalf("newWhisperClient failed: %v", err)
	}

	if _, err := client.Recognize(context.Background(), writeWhisperTestAudio(t), 0); err == nil {
		t.Fatal("Expected error for unreachable server")
	}
}

func TestWhisperClientEmptyEndpoint(t *testing.T) {
	if _, err := newWhisperClient("", "small.en", "cpu", "int8", false, 0); err == nil {
		t.Fatal("Expected error for empty endpoint")
	}
}
