// Package schema implements the field-level type contract system that
// governs every DAG edge: FIXED, FLEXIBLE, and OBSERVED modes, first-row
// locking, and the structural validation performed at consumer
// boundaries.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tachyon-beep/elspeth-sub008/canonical"
	"github.com/tachyon-beep/elspeth-sub008/errtax"
)

// Mode selects how a SchemaContract's field set is determined and
// enforced.
type Mode string

const (
	// ModeFixed declares the full field set up front; any extra field
	// observed at runtime is a structural violation.
	ModeFixed Mode = "FIXED"

	// ModeFlexible declares a subset of fields with fixed types; extra
	// fields are allowed and carried through unchanged.
	ModeFlexible Mode = "FLEXIBLE"

	// ModeObserved learns its field set from the first accepted row;
	// the contract locks immediately afterward.
	ModeObserved Mode = "OBSERVED"
)

var normalizeRe = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize maps an arbitrary source header to a stable identifier:
// lowercased, with runs of non-alphanumeric characters collapsed to a
// single underscore, and leading/trailing underscores trimmed.
func Normalize(header string) string {
	lower := strings.ToLower(strings.TrimSpace(header))
	collapsed := normalizeRe.ReplaceAllString(lower, "_")
	return strings.Trim(collapsed, "_")
}

// FieldContract describes one column of a schema.
type FieldContract struct {
	NormalizedName string
	OriginalName   string
	Type           string // one of "string", "int", "float", "bool"
	Required       bool
	Source         string // "declared" | "inferred"
}

// Config is the configurable, pre-lock form of a schema: what a plugin
// declares before any row has been observed.
type Config struct {
	Mode             Mode
	Fields           []FieldContract // optional declared list; required for FIXED/FLEXIBLE
	GuaranteedFields []string        // subset of Fields' normalized names
	AuditFields      []string
	RequiredFields   []string
}

// Contract is the immutable, hashable description of a data shape at a
// DAG edge, produced from a Config once fields are known (declared
// up-front for FIXED/FLEXIBLE, or observed from the first row for
// OBSERVED).
type Contract struct {
	Mode   Mode
	Fields []FieldContract // ordered, deduplicated by NormalizedName
	Locked bool
}

// NewFixed builds a locked FIXED contract from declared fields.
func NewFixed(fields []FieldContract) *Contract {
	return &Contract{Mode: ModeFixed, Fields: dedupe(fields), Locked: true}
}

// NewFlexible builds a locked FLEXIBLE contract from declared fields.
// Extra fields observed at runtime are permitted and are not reflected
// back into Fields.
func NewFlexible(fields []FieldContract) *Contract {
	return &Contract{Mode: ModeFlexible, Fields: dedupe(fields), Locked: true}
}

// NewObservedUnlocked builds an OBSERVED contract with no fields yet;
// it locks on the first call to LockFromRow.
func NewObservedUnlocked() *Contract {
	return &Contract{Mode: ModeObserved, Fields: nil, Locked: false}
}

// LockFromRow locks an OBSERVED contract using the field names and
// runtime value types of row. It is a framework invariant violation to
// call this on an already-locked contract.
func (c *Contract) LockFromRow(row map[string]any) (*Contract, error) {
	if c.Mode != ModeObserved {
		return nil, errtax.OrchestrationInvariant("LockFromRow called on a non-OBSERVED contract")
	}
	if c.Locked {
		return nil, errtax.OrchestrationInvariant("attempted mutation of a locked schema contract")
	}

	fields := make([]FieldContract, 0, len(row))
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	// Deterministic field order regardless of map iteration order.
	sort.Strings(names)
	for _, name := range names {
		fields = append(fields, FieldContract{
			NormalizedName: Normalize(name),
			OriginalName:   name,
			Type:           inferType(row[name]),
			Required:       false,
			Source:         "inferred",
		})
	}

	return &Contract{Mode: ModeObserved, Fields: fields, Locked: true}, nil
}

// VersionHash is the canonical hash of (mode, ordered fields, locked),
// used as the audit key for this contract.
func (c *Contract) VersionHash() (string, error) {
	fieldList := make([]any, len(c.Fields))
	for i, f := range c.Fields {
		fieldList[i] = map[string]any{
			"normalized_name": f.NormalizedName,
			"original_name":   f.OriginalName,
			"type":            f.Type,
			"required":        f.Required,
			"source":          f.Source,
		}
	}
	return canonical.StableHash(map[string]any{
		"mode":   string(c.Mode),
		"fields": fieldList,
		"locked": c.Locked,
	})
}

// EffectiveGuarantees returns the set of field names a producer with
// this contract and the given config-level GuaranteedFields promises to
// a consumer. For OBSERVED contracts with no explicit guarantees this is
// empty.
func EffectiveGuarantees(cfg *Config, contract *Contract) map[string]struct{} {
	out := make(map[string]struct{})
	for _, name := range cfg.GuaranteedFields {
		out[Normalize(name)] = struct{}{}
	}
	if len(out) == 0 && contract != nil && contract.Mode != ModeObserved {
		for _, f := range contract.Fields {
			out[f.NormalizedName] = struct{}{}
		}
	}
	return out
}

// Validate performs structural validation of row against c: required
// fields present, FIXED mode permits no extras, declared types match.
// No coercion is performed here — coercion only happens at sources.
func (c *Contract) Validate(row map[string]any) error {
	byName := make(map[string]FieldContract, len(c.Fields))
	for _, f := range c.Fields {
		byName[f.NormalizedName] = f
	}

	for _, f := range c.Fields {
		if !f.Required {
			continue
		}
		if _, ok := row[f.NormalizedName]; !ok {
			return errtax.MissingField(f.NormalizedName)
		}
	}

	if c.Mode == ModeFixed {
		for key := range row {
			if _, ok := byName[Normalize(key)]; !ok {
				return errtax.New(errtax.CodeTypeMismatch, "unexpected field under FIXED contract").
					WithDetail("field", key)
			}
		}
	}

	for name, value := range row {
		field, ok := byName[Normalize(name)]
		if !ok {
			continue // FLEXIBLE/OBSERVED: extras pass through unchecked
		}
		if !typeMatches(field.Type, value) {
			return errtax.TypeMismatch(field.NormalizedName, field.Type, value)
		}
	}

	return nil
}

func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "int":
		switch value.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case "float":
		switch value.(type) {
		case float32, float64:
			return true
		}
		return false
	case "bool":
		_, ok := value.(bool)
		return ok
	default:
		return true
	}
}

// Coerce converts a raw Tier 3 value to targetType ("string", "int",
// "float", or "bool") per the framework's fixed coercion table. It is
// the one place Tier 3 -> Tier 2 conversion is permitted; Contract.Validate
// never coerces, it only checks a value already matches its declared
// type. Source plugins call Coerce while building a row, before it
// ever reaches a Contract.
func Coerce(value any, targetType string) (any, error) {
	switch targetType {
	case "string":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(value), nil
	case "int":
		switch v := value.(type) {
		case int, int32, int64:
			return v, nil
		case float32:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case string:
			if v == "" {
				return nil, errtax.ParseMalformed("cannot coerce empty string to int")
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, errtax.ParseMalformed(fmt.Sprintf("cannot coerce %q to int", v))
			}
			return n, nil
		default:
			return nil, errtax.ParseMalformed(fmt.Sprintf("cannot coerce %T to int", value))
		}
	case "float":
		switch v := value.(type) {
		case float32, float64:
			return v, nil
		case int, int32, int64:
			return v, nil
		case string:
			if v == "" {
				return nil, errtax.ParseMalformed("cannot coerce empty string to float")
			}
			lower := strings.ToLower(strings.TrimSpace(v))
			if lower == "nan" || lower == "inf" || lower == "-inf" || lower == "+inf" {
				return nil, errtax.ParseMalformed(fmt.Sprintf("cannot coerce %q to float: non-finite literal rejected", v))
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errtax.ParseMalformed(fmt.Sprintf("cannot coerce %q to float", v))
			}
			return f, nil
		default:
			return nil, errtax.ParseMalformed(fmt.Sprintf("cannot coerce %T to float", value))
		}
	case "bool":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1":
				return true, nil
			case "false", "0":
				return false, nil
			default:
				return nil, errtax.ParseMalformed(fmt.Sprintf("cannot coerce %q to bool", v))
			}
		default:
			return nil, errtax.ParseMalformed(fmt.Sprintf("cannot coerce %T to bool", value))
		}
	default:
		return value, nil
	}
}

func inferType(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "float"
	case bool:
		return "bool"
	default:
		return "string"
	}
}

func dedupe(fields []FieldContract) []FieldContract {
	seen := make(map[string]struct{}, len(fields))
	out := make([]FieldContract, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f.NormalizedName]; ok {
			continue
		}
		seen[f.NormalizedName] = struct{}{}
		out = append(out, f)
	}
	return out
}
