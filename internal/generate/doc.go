// Package generate implements the HTTP client for the text-generation
// service and the recovery of a structured note from its free-text reply.
// Transport failures are hard errors; malformed JSON in an otherwise
// successful reply degrades to the raw text instead of failing.
package generate
