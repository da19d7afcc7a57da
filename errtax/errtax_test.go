package errtax

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(CodeConfiguration, "test message"),
			want: "[CFG_1001] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(CodeNetwork, "test message", errors.New("underlying")),
			want: "[EXT_6004] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeServer, "test", underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(CodeTypeMismatch, "test")
	err.WithDetail("field", "price").WithDetail("expected_type", "float")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "price" {
		t.Errorf("Details[field] = %v, want price", err.Details["field"])
	}
}

func TestDispositionFor(t *testing.T) {
	tests := []struct {
		code Code
		want Disposition
	}{
		{CodeConfiguration, DispositionAbort},
		{CodePluginConfig, DispositionAbort},
		{CodeSecretLoad, DispositionAbort},
		{CodeSchemaContractViolation, DispositionAbort},
		{CodeOrchestrationInvariant, DispositionCrash},
		{CodeTypeMismatch, DispositionQuarantine},
		{CodeMissingField, DispositionQuarantine},
		{CodeParseMalformed, DispositionQuarantine},
		{CodeTransformError, DispositionRowError},
		{CodeCapacity, DispositionRetry},
		{CodeRateLimit, DispositionRetry},
		{CodeServer, DispositionRetry},
		{CodeNetwork, DispositionRetry},
		{CodeNotFound, DispositionTerminal},
		{CodeUnauthorized, DispositionTerminal},
		{CodeForbidden, DispositionTerminal},
		{CodeSSRFBlocked, DispositionTerminal},
		{Code("UNKNOWN_9999"), DispositionCrash},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := DispositionFor(tt.code); got != tt.want {
				t.Errorf("DispositionFor(%v) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestTypeMismatch(t *testing.T) {
	err := TypeMismatch("price", "float", "abc")

	if err.Code != CodeTypeMismatch {
		t.Errorf("Code = %v, want %v", err.Code, CodeTypeMismatch)
	}
	if err.Disposition() != DispositionQuarantine {
		t.Errorf("Disposition() = %v, want %v", err.Disposition(), DispositionQuarantine)
	}
	if err.Details["field"] != "price" {
		t.Errorf("Details[field] = %v, want price", err.Details["field"])
	}
	if err.Details["value"] != "abc" {
		t.Errorf("Details[value] = %v, want abc", err.Details["value"])
	}
}

func TestMissingField(t *testing.T) {
	err := MissingField("customer_id")

	if err.Code != CodeMissingField {
		t.Errorf("Code = %v, want %v", err.Code, CodeMissingField)
	}
	if err.Details["field"] != "customer_id" {
		t.Errorf("Details[field] = %v, want customer_id", err.Details["field"])
	}
}

func TestOrchestrationInvariant(t *testing.T) {
	err := OrchestrationInvariant("empty batch reached batch-aware transform")

	if err.Code != CodeOrchestrationInvariant {
		t.Errorf("Code = %v, want %v", err.Code, CodeOrchestrationInvariant)
	}
	if err.Disposition() != DispositionCrash {
		t.Errorf("Disposition() = %v, want %v", err.Disposition(), DispositionCrash)
	}
}

func TestSSRFBlocked(t *testing.T) {
	err := SSRFBlocked("169.254.169.254", "link-local")

	if err.Code != CodeSSRFBlocked {
		t.Errorf("Code = %v, want %v", err.Code, CodeSSRFBlocked)
	}
	if err.Disposition() != DispositionTerminal {
		t.Errorf("Disposition() = %v, want %v", err.Disposition(), DispositionTerminal)
	}
	if err.Details["host"] != "169.254.169.254" {
		t.Errorf("Details[host] = %v, want 169.254.169.254", err.Details["host"])
	}
}

func TestSchemaContractViolation(t *testing.T) {
	err := SchemaContractViolation("csv_source", "enrich_transform", "customer_id")

	if err.Code != CodeSchemaContractViolation {
		t.Errorf("Code = %v, want %v", err.Code, CodeSchemaContractViolation)
	}
	if err.Details["producer"] != "csv_source" {
		t.Errorf("Details[producer] = %v, want csv_source", err.Details["producer"])
	}
	if err.Details["consumer"] != "enrich_transform" {
		t.Errorf("Details[consumer] = %v, want enrich_transform", err.Details["consumer"])
	}
}

func TestRateLimit(t *testing.T) {
	underlying := errors.New("429 received")
	err := RateLimit("openai", underlying)

	if err.Code != CodeRateLimit {
		t.Errorf("Code = %v, want %v", err.Code, CodeRateLimit)
	}
	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
	if err.Disposition() != DispositionRetry {
		t.Errorf("Disposition() = %v, want %v", err.Disposition(), DispositionRetry)
	}
}

func TestAs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "taxonomy error",
			err:  New(CodeCapacity, "test"),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := As(tt.err)
			if ok != tt.want {
				t.Errorf("As() ok = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	err := New(CodeNotFound, "test")
	code, ok := CodeOf(err)
	if !ok {
		t.Fatalf("CodeOf() ok = false, want true")
	}
	if code != CodeNotFound {
		t.Errorf("CodeOf() = %v, want %v", code, CodeNotFound)
	}

	_, ok = CodeOf(errors.New("plain"))
	if ok {
		t.Errorf("CodeOf() ok = true for plain error, want false")
	}
}

func TestIsCrash(t *testing.T) {
	if !IsCrash(New(CodeOrchestrationInvariant, "bug")) {
		t.Errorf("IsCrash() = false for invariant error, want true")
	}
	if IsCrash(New(CodeCapacity, "transient")) {
		t.Errorf("IsCrash() = true for capacity error, want false")
	}
	if IsCrash(errors.New("plain")) {
		t.Errorf("IsCrash() = true for plain error, want false")
	}
}
