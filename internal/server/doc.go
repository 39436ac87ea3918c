// Package server implements the HTTP API for the dictation service.
// It exposes the transcription and note pipeline endpoints, session CRUD,
// and monitoring endpoints, and translates the pipeline error taxonomy
// into HTTP status codes.
package server
