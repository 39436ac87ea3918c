// Package session implements the keyed document store for dictation
// sessions: one JSON file per session identifier, with whole-document saves
// and a targeted content merge used by the note pipeline.
package session
