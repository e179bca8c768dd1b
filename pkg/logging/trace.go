package logging

import "log/slog"

// EnableTrace gates the high-volume playback traces (run-loop kicks,
// pipeline progress, per-turn playback events). Off by default, switched
// on with the -trace flag.
var EnableTrace = false

// Trace logs a message at DEBUG level when tracing is enabled.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}

// TraceDefault logs to the default logger when tracing is enabled.
func TraceDefault(msg string, args ...any) {
	if EnableTrace {
		slog.Debug(msg, args...)
	}
}
