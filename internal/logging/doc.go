// Package logging provides opt-in file-based logging with rotation for axon.
// The daemon always logs to stderr with a structured JSON format; when a log
// file path is configured, logs are mirrored there with size-based rotation.
package logging
