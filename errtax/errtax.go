// Package errtax provides the unified error taxonomy for the pipeline
// runtime: a typed code, a disposition describing how the engine must
// react, and structured details for the landscape audit trail.
package errtax

import (
	"errors"
	"fmt"
)

// Code identifies a specific error kind. Codes are namespaced by the
// pipeline stage that raises them so landscape queries can group failures
// by subsystem without parsing message text.
type Code string

const (
	// Pre-run configuration errors (CFG_1xxx).
	CodeConfiguration Code = "CFG_1001"
	CodePluginConfig  Code = "CFG_1002"
	CodeSecretLoad    Code = "CFG_1003"

	// DAG/contract validation errors (DAG_2xxx).
	CodeSchemaContractViolation Code = "DAG_2001"

	// Framework invariant violations (INV_3xxx) — always a bug in the
	// runtime or a plugin, never user data.
	CodeOrchestrationInvariant Code = "INV_3001"

	// Source-boundary / Tier 3 coercion errors (SRC_4xxx) — always
	// recovered locally via quarantine.
	CodeTypeMismatch     Code = "SRC_4001"
	CodeMissingField     Code = "SRC_4002"
	CodeParseMalformed   Code = "SRC_4003"

	// Per-row transform failures (XFM_5xxx) — recovered locally, row
	// routed to its configured error destination.
	CodeTransformError Code = "XFM_5001"

	// External-call errors (EXT_6xxx) — may be retried by the pooled
	// executor depending on disposition.
	CodeCapacity     Code = "EXT_6001"
	CodeRateLimit    Code = "EXT_6002"
	CodeServer       Code = "EXT_6003"
	CodeNetwork      Code = "EXT_6004"
	CodeNotFound     Code = "EXT_6005"
	CodeUnauthorized Code = "EXT_6006"
	CodeForbidden    Code = "EXT_6007"
	CodeSSRFBlocked  Code = "EXT_6008"
)

// Disposition tells the engine how to react to an error of a given Code.
type Disposition string

const (
	// DispositionAbort stops the run before (or without) starting a new
	// one. No partial audit data is emitted.
	DispositionAbort Disposition = "abort"

	// DispositionCrash is raised for Tier 1 framework invariant
	// violations. The run terminates immediately; this is never
	// expected to be caught by plugin code.
	DispositionCrash Disposition = "crash"

	// DispositionQuarantine routes a single row out of the pipeline and
	// records a validation_errors entry; the run continues.
	DispositionQuarantine Disposition = "quarantine"

	// DispositionRowError marks the row with an error outcome and
	// routes it to its configured error destination; the run continues.
	DispositionRowError Disposition = "row_error"

	// DispositionRetry signals the pooled capacity-retry executor that
	// the call may be retried under AIMD backoff.
	DispositionRetry Disposition = "retry"

	// DispositionTerminal marks a single external call (and the row
	// that depends on it) as permanently failed; no further retry.
	DispositionTerminal Disposition = "terminal"
)

// dispositions maps every Code to its fixed Disposition. The mapping is
// immutable at runtime: callers never choose a disposition independently
// of the code.
var dispositions = map[Code]Disposition{
	CodeConfiguration:           DispositionAbort,
	CodePluginConfig:            DispositionAbort,
	CodeSecretLoad:              DispositionAbort,
	CodeSchemaContractViolation: DispositionAbort,
	CodeOrchestrationInvariant:  DispositionCrash,
	CodeTypeMismatch:            DispositionQuarantine,
	CodeMissingField:            DispositionQuarantine,
	CodeParseMalformed:          DispositionQuarantine,
	CodeTransformError:          DispositionRowError,
	CodeCapacity:                DispositionRetry,
	CodeRateLimit:               DispositionRetry,
	CodeServer:                  DispositionRetry,
	CodeNetwork:                 DispositionRetry,
	CodeNotFound:                DispositionTerminal,
	CodeUnauthorized:            DispositionTerminal,
	CodeForbidden:               DispositionTerminal,
	CodeSSRFBlocked:             DispositionTerminal,
}

// DispositionFor returns the fixed disposition for code, or
// DispositionCrash if code is unknown (fail loud rather than silently
// recovering an error nobody classified).
func DispositionFor(code Code) Disposition {
	if d, ok := dispositions[code]; ok {
		return d
	}
	return DispositionCrash
}

// Error is the structured error type carried across every pipeline
// boundary. Its Code fixes the Disposition; Details carries the
// structured payload the landscape recorder writes to validation_errors,
// transform_errors, or the call/outcome tables.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Disposition returns the fixed disposition for e's code.
func (e *Error) Disposition() Disposition {
	return DispositionFor(e.Code)
}

// WithDetail attaches a structured detail and returns e for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that wraps an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Configuration errors

func Configuration(message string) *Error {
	return New(CodeConfiguration, message)
}

func PluginConfig(plugin, message string) *Error {
	return New(CodePluginConfig, message).WithDetail("plugin", plugin)
}

func SecretLoad(name string, err error) *Error {
	return Wrap(CodeSecretLoad, "secret could not be loaded", err).WithDetail("secret", name)
}

// DAG / contract errors

func SchemaContractViolation(producer, consumer, field string) *Error {
	return New(CodeSchemaContractViolation, "producer does not guarantee a field the consumer requires").
		WithDetail("producer", producer).
		WithDetail("consumer", consumer).
		WithDetail("field", field)
}

// Framework invariant errors — Tier 1, always a bug.

func OrchestrationInvariant(message string) *Error {
	return New(CodeOrchestrationInvariant, message)
}

// Source-boundary / Tier 3 coercion errors.

func TypeMismatch(field, expectedType string, value any) *Error {
	return New(CodeTypeMismatch, "field value does not match the locked contract type").
		WithDetail("field", field).
		WithDetail("expected_type", expectedType).
		WithDetail("value", fmt.Sprintf("%v", value))
}

func MissingField(field string) *Error {
	return New(CodeMissingField, "required field is absent from the row").
		WithDetail("field", field)
}

func ParseMalformed(reason string) *Error {
	return New(CodeParseMalformed, reason)
}

// Transform errors.

func TransformError(plugin string, err error) *Error {
	return Wrap(CodeTransformError, "transform failed for this row", err).WithDetail("plugin", plugin)
}

// External-call errors.

func Capacity(service string, err error) *Error {
	return Wrap(CodeCapacity, "external service reported capacity exhaustion", err).WithDetail("service", service)
}

func RateLimit(service string, err error) *Error {
	return Wrap(CodeRateLimit, "external service reported rate limiting", err).WithDetail("service", service)
}

func Server(service string, statusCode int, err error) *Error {
	return Wrap(CodeServer, "external service returned a server error", err).
		WithDetail("service", service).
		WithDetail("status_code", statusCode)
}

func Network(service string, err error) *Error {
	return Wrap(CodeNetwork, "network call to external service failed", err).WithDetail("service", service)
}

func NotFound(service string) *Error {
	return New(CodeNotFound, "external resource not found").WithDetail("service", service)
}

func Unauthorized(service string) *Error {
	return New(CodeUnauthorized, "external service rejected credentials").WithDetail("service", service)
}

func Forbidden(service string) *Error {
	return New(CodeForbidden, "external service denied access").WithDetail("service", service)
}

func SSRFBlocked(host string, reason string) *Error {
	return New(CodeSSRFBlocked, "request target resolved to a disallowed address").
		WithDetail("host", host).
		WithDetail("reason", reason)
}

// Helper functions

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the Code of err if it wraps an *Error, and ok=false
// otherwise.
func CodeOf(err error) (Code, bool) {
	if e, ok := As(err); ok {
		return e.Code, true
	}
	return "", false
}

// IsCrash reports whether err, if it is an *Error, carries the crash
// disposition.
func IsCrash(err error) bool {
	e, ok := As(err)
	return ok && e.Disposition() == DispositionCrash
}
