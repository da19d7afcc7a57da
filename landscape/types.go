package landscape

import "time"

// Run is a single invocation of the pipeline.
type Run struct {
	RunID               string
	ConfigJSON          string
	CanonicalVersion    string
	SchemaContractJSON  *string
	SchemaContractHash  *string
	Status              string
	CreatedAt           time.Time
	CompletedAt         *time.Time
}

// Node is one plugin instance in the DAG, identified by (NodeID, RunID).
type Node struct {
	NodeID              string
	RunID               string
	PluginName          string
	NodeType            string
	PluginVersion       string
	ConfigJSON          string
	SchemaConfigJSON    string
	InputContractJSON   *string
	OutputContractJSON  *string
	SequenceOrdinal     *int
}

// NodeState is a single execution of a node for a specific token.
type NodeState struct {
	StateID       string
	TokenID       string
	NodeID        string
	RunID         string
	StepIndex     int
	InputDataJSON string
	Status        string
	StartedAt     time.Time
}

// Call is one external network/SQL/FS request performed inside a node
// state (or, for operation calls, outside any row's state).
type Call struct {
	CallID       string
	StateID      *string
	OperationID  *string
	CallIndex    *int
	CallType     string
	Status       string
	RequestHash  string
	ResponseHash *string
	ErrorJSON    *string
	LatencyMs    *float64
	RequestRef   *string
	ResponseRef  *string
	CreatedAt    time.Time
}

// TokenOutcomeRecord is the stored form of a token's fate at a join point.
type TokenOutcomeRecord struct {
	OutcomeID     string
	RunID         string
	TokenID       string
	OutcomeKind   string
	IsTerminal    bool
	SinkName      *string
	ForkGroupID   *string
	JoinGroupID   *string
	ExpandGroupID *string
	ErrorHash     *string
	BatchID       *string
	CreatedAt     time.Time
}

// ValidationError is a row rejected at a source boundary.
type ValidationError struct {
	ErrorID        string
	RunID          string
	NodeID         string
	RowDataJSON    string
	ErrorText      string
	SchemaMode     string
	Destination    string
	ViolationField *string
	ViolationKind  *string
	CreatedAt      time.Time
}

// TransformError is a token rejected at a transform.
type TransformError struct {
	ErrorID     string
	RunID       string
	TokenID     string
	TransformID string
	RowDataJSON string
	ErrorText   string
	Destination string
	CreatedAt   time.Time
}

// SecretResolutionRecord is the stored audit record of a secret having
// been loaded, carrying a fingerprint rather than the plaintext value.
type SecretResolutionRecord struct {
	ResolutionID string
	RunID        string
	EnvVar       string
	Source       string
	VaultURL     *string
	SecretName   string
	LatencyMs    *float64
	Fingerprint  string
	CreatedAt    time.Time
}

// RecordCallParams carries the arguments to RecordCall/RecordOperationCall.
type RecordCallParams struct {
	StateID      string // empty for operation calls
	OperationID  string // empty for state-scoped calls
	CallIndex    int    // ignored for operation calls
	CallType     string
	Status       string
	RequestData  any
	ResponseData any // optional
	Err          error
	LatencyMs    *float64
	RequestRef   *string
	ResponseRef  *string
}
