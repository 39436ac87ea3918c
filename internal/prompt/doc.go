// Package prompt merges a prompt template, a transcript, and a note template
// into a single prompt string through placeholder substitution.
package prompt
