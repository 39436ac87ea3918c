// Package audio handles audio normalization and container conversion.
// It shells out to ffmpeg to produce the canonical mono 16 kHz waveform the
// speech engine expects, converts browser-recorded containers to WAV, and
// provides WAV header probing for format verification.
package audio
