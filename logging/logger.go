// Package logging provides structured logging with run/node/token
// correlation for the pipeline runtime.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through a run.
type ContextKey string

const (
	// RunIDKey is the context key for the active run ID.
	RunIDKey ContextKey = "run_id"
	// NodeIDKey is the context key for the active DAG node ID.
	NodeIDKey ContextKey = "node_id"
	// TokenIDKey is the context key for the active token ID.
	TokenIDKey ContextKey = "token_id"
)

// Logger wraps logrus.Logger with pipeline-specific structured helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a new Logger instance for component (e.g. "engine",
// "landscape", "chaos-llm").
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv constructs a logger using ELSPETH_LOG_LEVEL and
// ELSPETH_LOG_FORMAT. Defaults to "info" and "json" when unset.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("ELSPETH_LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("ELSPETH_LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext creates a logger entry carrying run_id/node_id/token_id
// from ctx, when present.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)

	if runID := ctx.Value(RunIDKey); runID != nil {
		entry = entry.WithField("run_id", runID)
	}
	if nodeID := ctx.Value(NodeIDKey); nodeID != nil {
		entry = entry.WithField("node_id", nodeID)
	}
	if tokenID := ctx.Value(TokenIDKey); tokenID != nil {
		entry = entry.WithField("token_id", tokenID)
	}

	return entry
}

// WithFields creates a logger entry with custom fields plus component.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError creates a logger entry with the error attached.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"component": l.component,
		"error":     err.Error(),
	})
}

// Context helper functions

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// RunID retrieves the run ID from context.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(RunIDKey).(string); ok {
		return v
	}
	return ""
}

// WithNodeID adds a DAG node ID to the context.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, NodeIDKey, nodeID)
}

// NodeID retrieves the DAG node ID from context.
func NodeID(ctx context.Context) string {
	if v, ok := ctx.Value(NodeIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTokenID adds a token ID to the context.
func WithTokenID(ctx context.Context, tokenID string) context.Context {
	return context.WithValue(ctx, TokenIDKey, tokenID)
}

// TokenID retrieves the token ID from context.
func TokenID(ctx context.Context) string {
	if v, ok := ctx.Value(TokenIDKey).(string); ok {
		return v
	}
	return ""
}

// Structured logging helpers

// LogNodeState logs a node state transition (started/completed/failed).
func (l *Logger) LogNodeState(ctx context.Context, stateID, status string, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"state_id":    stateID,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}).Info("node state transition")
}

// LogExternalCall logs an audited external call outcome.
func (l *Logger) LogExternalCall(ctx context.Context, callType, target string, callIndex int, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"call_type":  callType,
		"target":     target,
		"call_index": callIndex,
		"duration_ms": duration.Milliseconds(),
	})

	if err != nil {
		entry.WithError(err).Error("external call failed")
	} else {
		entry.Info("external call completed")
	}
}

// LogOutcome logs a terminal or non-terminal token outcome.
func (l *Logger) LogOutcome(ctx context.Context, outcome string, terminal bool) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"outcome":  outcome,
		"terminal": terminal,
	}).Info("token outcome recorded")
}

// LogQuarantine logs a row quarantine decision.
func (l *Logger) LogQuarantine(ctx context.Context, reason, destination string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"reason":      reason,
		"destination": destination,
	}).Warn("row quarantined")
}

// LogAudit logs a secret-access or similar audit event.
func (l *Logger) LogAudit(ctx context.Context, action, resource, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":   action,
		"resource": resource,
		"result":   result,
		"audit":    true,
	}).Info("audit event")
}

// LogErrorWithStack logs an error with additional structured fields.
func (l *Logger) LogErrorWithStack(ctx context.Context, err error, message string, fields map[string]interface{}) {
	logFields := logrus.Fields{"error": err.Error()}
	for k, v := range fields {
		logFields[k] = v
	}
	l.WithContext(ctx).WithFields(logFields).Error(message)
}

// Fatal logs a fatal error and exits the process. Reserved for Tier 1
// invariant violations surfaced at the process boundary (e.g. cmd/*).
func (l *Logger) Fatal(ctx context.Context, message string, err error) {
	l.WithContext(ctx).WithError(err).Fatal(message)
}

// Global logger instance

var defaultLogger *Logger

// InitDefault initializes the default logger.
func InitDefault(component, level, format string) {
	defaultLogger = New(component, level, format)
}

// Default returns the default logger, falling back to a basic one if
// InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("elspeth", "info", "json")
	}
	return defaultLogger
}
