package trust

import (
	"context"

	"github.com/tachyon-beep/elspeth-sub008/pluginctx"
	"github.com/tachyon-beep/elspeth-sub008/schema"
)

// LoadResult is one element of a Source's load iterator: exactly one
// of Row or QuarantineErr is meaningful.
type LoadResult struct {
	Row           map[string]any
	Quarantined   bool
	QuarantineErr error
}

// Source is the Tier 3 ingress contract. Load is finite and not
// restartable within a run; GetSchemaContract returns nil until the
// first valid row locks the contract.
type Source interface {
	Load(ctx context.Context, pctx *pluginctx.Context) (<-chan LoadResult, error)
	GetSchemaContract() *schema.Contract
}

// ObservedSource is a minimal Source base for plugins using an OBSERVED
// contract: it locks from the first accepted row and holds steady
// afterward. Embedding plugins call LockFromRow from their Load loop.
type ObservedSource struct {
	contract *schema.Contract
}

// NewObservedSource constructs an ObservedSource with an unlocked
// contract.
func NewObservedSource() *ObservedSource {
	return &ObservedSource{contract: schema.NewObservedUnlocked()}
}

// GetSchemaContract returns nil before the first valid row, and the
// locked contract afterward.
func (s *ObservedSource) GetSchemaContract() *schema.Contract {
	if s.contract == nil || !s.contract.Locked {
		return nil
	}
	return s.contract
}

// LockFromRow locks the contract against row's field set, unless it is
// already locked, in which case it is a no-op (later rows never
// re-lock). Returns the active (possibly just-locked) contract.
func (s *ObservedSource) LockFromRow(row map[string]any) (*schema.Contract, error) {
	if s.contract.Locked {
		return s.contract, nil
	}
	locked, err := s.contract.LockFromRow(row)
	if err != nil {
		return nil, err
	}
	s.contract = locked
	return s.contract, nil
}
