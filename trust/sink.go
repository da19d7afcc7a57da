package trust

import (
	"context"
	"net/url"

	"github.com/tachyon-beep/elspeth-sub008/errtax"
	"github.com/tachyon-beep/elspeth-sub008/lineage"
	"github.com/tachyon-beep/elspeth-sub008/pluginctx"
)

// ArtifactType names what kind of target a Sink produced.
type ArtifactType string

const (
	ArtifactFile     ArtifactType = "file"
	ArtifactDatabase ArtifactType = "database"
	ArtifactWebhook  ArtifactType = "webhook"
)

// SanitizedURI is a URI with any embedded userinfo (credentials)
// stripped. It can only be constructed via NewSanitizedURI, so a sink
// cannot accidentally pass a raw, secret-bearing connection string into
// an ArtifactDescriptor that ends up in the audit trail.
type SanitizedURI struct {
	value string
}

// NewSanitizedURI parses raw and strips any userinfo component.
func NewSanitizedURI(raw string) (SanitizedURI, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return SanitizedURI{}, errtax.Wrap(errtax.CodeConfiguration, "invalid artifact uri", err)
	}
	parsed.User = nil
	return SanitizedURI{value: parsed.String()}, nil
}

func (s SanitizedURI) String() string { return s.value }

// ArtifactDescriptor is the immutable record a Sink reports for
// something it produced. Database and webhook artifacts require a
// SanitizedURI rather than a plain string, so a plaintext secret in a
// connection string or webhook URL can never reach the landscape.
type ArtifactDescriptor struct {
	ArtifactType ArtifactType
	PathOrURI    string
	ContentHash  string
	SizeBytes    int64
	Metadata     map[string]any
}

// ForFile builds a file ArtifactDescriptor. Local paths carry no
// credentials, so a plain string is accepted.
func ForFile(path, contentHash string, sizeBytes int64, metadata map[string]any) ArtifactDescriptor {
	return ArtifactDescriptor{ArtifactType: ArtifactFile, PathOrURI: path, ContentHash: contentHash, SizeBytes: sizeBytes, Metadata: metadata}
}

// ForDatabase builds a database ArtifactDescriptor from a pre-sanitized URI.
func ForDatabase(uri SanitizedURI, contentHash string, sizeBytes int64, metadata map[string]any) ArtifactDescriptor {
	return ArtifactDescriptor{ArtifactType: ArtifactDatabase, PathOrURI: uri.String(), ContentHash: contentHash, SizeBytes: sizeBytes, Metadata: metadata}
}

// ForWebhook builds a webhook ArtifactDescriptor from a pre-sanitized URI.
func ForWebhook(uri SanitizedURI, contentHash string, sizeBytes int64, metadata map[string]any) ArtifactDescriptor {
	return ArtifactDescriptor{ArtifactType: ArtifactWebhook, PathOrURI: uri.String(), ContentHash: contentHash, SizeBytes: sizeBytes, Metadata: metadata}
}

// HeadersMode selects how a Sink resolves output column names.
type HeadersMode string

const (
	HeadersNormalized HeadersMode = "normalized"
	HeadersOriginal   HeadersMode = "original"
	HeadersCustom     HeadersMode = "custom"
)

// OutputTargetValidation is the result of a Sink's pre-run check.
type OutputTargetValidation struct {
	Valid         bool
	ErrorMessage  string
	MissingFields []string
}

// Sink is the Tier-boundary egress contract.
type Sink interface {
	// OnStart receives the field-resolution mapping when headers:
	// "original" is requested. May be called with a nil mapping if
	// resolution is not yet available; sinks needing it before first
	// write must defer and error clearly at validation time instead.
	OnStart(ctx context.Context, pctx *pluginctx.Context, fieldResolution map[string]string) error

	Write(ctx context.Context, pctx *pluginctx.Context, results []lineage.TransformResult, metadata map[string]any) error

	Produces() []ArtifactDescriptor
	Consumes() []string
	CollectArtifacts() map[string]ArtifactDescriptor

	ValidateOutputTarget() OutputTargetValidation

	// SetResumeFieldResolution injects the field-resolution mapping
	// required by ValidateOutputTarget when headers: "original" was
	// requested for an append/resume write. Must be called before
	// ValidateOutputTarget in that case.
	SetResumeFieldResolution(mapping map[string]string)
}

// BaseSink provides the headers/resume-mapping bookkeeping shared by
// concrete sink plugins; it does not implement Write or artifact
// production, which are plugin-specific.
type BaseSink struct {
	Headers          HeadersMode
	resumeResolution map[string]string
	resolutionSet    bool
}

func NewBaseSink(headers HeadersMode) *BaseSink {
	if headers == "" {
		headers = HeadersNormalized
	}
	return &BaseSink{Headers: headers}
}

func (b *BaseSink) SetResumeFieldResolution(mapping map[string]string) {
	b.resumeResolution = mapping
	b.resolutionSet = true
}

// ValidateHeadersResolution returns the clear-mismatch validation
// required when Headers is "original" but no resolution mapping has
// been injected yet.
func (b *BaseSink) ValidateHeadersResolution() OutputTargetValidation {
	if b.Headers == HeadersOriginal && !b.resolutionSet {
		return OutputTargetValidation{
			Valid:        false,
			ErrorMessage: "headers: original requires a field-resolution mapping, but none has been set via set_resume_field_resolution",
		}
	}
	return OutputTargetValidation{Valid: true}
}

// ResumeResolution returns the injected mapping, or nil if none was set.
func (b *BaseSink) ResumeResolution() map[string]string {
	return b.resumeResolution
}
