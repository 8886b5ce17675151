// Package logger builds the gateway's structured logger on top of log/slog.
// Production environments log JSON; everything else logs human-readable text.
package logger
