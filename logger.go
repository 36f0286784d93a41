package orchestrator

import "context"

type Logger interface {
	// Debug is used for informational logs such as workflow progression.
	Debug(ctx context.Context, msg string, meta MKV)
	// Error is used when writing errors to the logs.
	Error(ctx context.Context, err error)
}

// MKV is a multiple key value store for the logger to format into its output.
type MKV map[string]string

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, meta MKV) {}

func (noopLogger) Error(ctx context.Context, err error) {}
