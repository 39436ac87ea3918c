// Package pipeline drives a dictation request end-to-end: scratch directory
// lifetime, audio transcode and normalization, transcription, prompt
// composition, structured note generation, and the session merge write-back.
package pipeline
