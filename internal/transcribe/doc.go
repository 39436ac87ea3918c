// Package transcribe provides the speech-to-text engine for dictated audio.
// It manages loaded model handles with per-key single-flight construction,
// resolves device and compute precision defaults, and reaches the speech
// recognizer over HTTP as a multipart file upload.
package transcribe
