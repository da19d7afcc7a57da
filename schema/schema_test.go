package schema

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Customer ID", "customer_id"},
		{"  Price (USD)  ", "price_usd"},
		{"already_normal", "already_normal"},
		{"Active?!", "active"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewFixed_ValidateRejectsExtraField(t *testing.T) {
	c := NewFixed([]FieldContract{
		{NormalizedName: "id", Type: "int", Required: true},
	})

	err := c.Validate(map[string]any{"id": 1, "extra": "nope"})
	if err == nil {
		t.Fatal("expected error for extra field under FIXED, got nil")
	}
}

func TestNewFixed_ValidateRejectsMissingRequired(t *testing.T) {
	c := NewFixed([]FieldContract{
		{NormalizedName: "id", Type: "int", Required: true},
	})

	err := c.Validate(map[string]any{})
	if err == nil {
		t.Fatal("expected error for missing required field, got nil")
	}
}

func TestNewFixed_ValidateRejectsTypeMismatch(t *testing.T) {
	c := NewFixed([]FieldContract{
		{NormalizedName: "price", Type: "float", Required: true},
	})

	err := c.Validate(map[string]any{"price": "not a float"})
	if err == nil {
		t.Fatal("expected error for type mismatch, got nil")
	}
}

func TestNewFlexible_AllowsExtras(t *testing.T) {
	c := NewFlexible([]FieldContract{
		{NormalizedName: "id", Type: "int", Required: true},
	})

	err := c.Validate(map[string]any{"id": 1, "extra": "carried through"})
	if err != nil {
		t.Fatalf("unexpected error under FLEXIBLE: %v", err)
	}
}

func TestObserved_LocksFromFirstRow(t *testing.T) {
	c := NewObservedUnlocked()
	if c.Locked {
		t.Fatal("newly constructed OBSERVED contract should not be locked")
	}

	locked, err := c.LockFromRow(map[string]any{"id": 7, "name": "widget"})
	if err != nil {
		t.Fatalf("LockFromRow returned error: %v", err)
	}
	if !locked.Locked {
		t.Fatal("contract should be locked after LockFromRow")
	}
	if len(locked.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(locked.Fields))
	}
}

func TestObserved_LockFromRowRejectsDoubleLock(t *testing.T) {
	c := NewObservedUnlocked()
	locked, err := c.LockFromRow(map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := locked.LockFromRow(map[string]any{"id": 2}); err == nil {
		t.Fatal("expected invariant violation on double lock, got nil")
	}
}

func TestVersionHash_StableAcrossFieldOrder(t *testing.T) {
	a := NewFixed([]FieldContract{
		{NormalizedName: "id", Type: "int"},
		{NormalizedName: "name", Type: "string"},
	})
	b := &Contract{Mode: ModeFixed, Locked: true, Fields: []FieldContract{
		{NormalizedName: "id", Type: "int"},
		{NormalizedName: "name", Type: "string"},
	}}

	ha, err := a.VersionHash()
	if err != nil {
		t.Fatalf("VersionHash error: %v", err)
	}
	hb, err := b.VersionHash()
	if err != nil {
		t.Fatalf("VersionHash error: %v", err)
	}
	if ha != hb {
		t.Errorf("VersionHash() not stable: %q != %q", ha, hb)
	}
}

func TestEffectiveGuarantees_ExplicitWins(t *testing.T) {
	cfg := &Config{GuaranteedFields: []string{"Customer ID"}}
	contract := NewFixed([]FieldContract{{NormalizedName: "id"}, {NormalizedName: "name"}})

	got := EffectiveGuarantees(cfg, contract)
	if _, ok := got["customer_id"]; !ok {
		t.Errorf("expected explicit guarantee customer_id, got %v", got)
	}
	if len(got) != 1 {
		t.Errorf("expected exactly 1 guarantee, got %d", len(got))
	}
}

func TestEffectiveGuarantees_ObservedWithNoneIsEmpty(t *testing.T) {
	cfg := &Config{}
	contract, _ := NewObservedUnlocked().LockFromRow(map[string]any{"id": 1})

	got := EffectiveGuarantees(cfg, contract)
	if len(got) != 0 {
		t.Errorf("expected empty guarantees for OBSERVED with none declared, got %v", got)
	}
}

func TestCoerce_StringToInt(t *testing.T) {
	got, err := Coerce("42", "int")
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if got.(int64) != 42 {
		t.Errorf("got %v, want int64(42)", got)
	}
}

func TestCoerce_EmptyStringToIntRejected(t *testing.T) {
	if _, err := Coerce("", "int"); err == nil {
		t.Fatal("expected error coercing empty string to int")
	}
}

func TestCoerce_StringToFloat(t *testing.T) {
	got, err := Coerce("3.14", "float")
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if got.(float64) != 3.14 {
		t.Errorf("got %v, want 3.14", got)
	}
}

func TestCoerce_NaNAndInfLiteralsRejected(t *testing.T) {
	for _, lit := range []string{"NaN", "Inf", "-Inf", "+Inf"} {
		if _, err := Coerce(lit, "float"); err == nil {
			t.Errorf("expected error coercing %q to float", lit)
		}
	}
}

func TestCoerce_StringToBool(t *testing.T) {
	cases := map[string]bool{"true": true, "TRUE": true, "1": true, "false": false, "0": false}
	for in, want := range cases {
		got, err := Coerce(in, "bool")
		if err != nil {
			t.Fatalf("Coerce(%q): %v", in, err)
		}
		if got.(bool) != want {
			t.Errorf("Coerce(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCoerce_InvalidBoolStringRejected(t *testing.T) {
	if _, err := Coerce("maybe", "bool"); err == nil {
		t.Fatal("expected error coercing \"maybe\" to bool")
	}
}

func TestCoerce_NumericPassthrough(t *testing.T) {
	got, err := Coerce(7.5, "float")
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if got.(float64) != 7.5 {
		t.Errorf("got %v, want 7.5 unchanged", got)
	}
}

func TestCoerce_AnythingToString(t *testing.T) {
	got, err := Coerce(42, "string")
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if got.(string) != "42" {
		t.Errorf("got %q, want \"42\"", got)
	}
}
