package landscape

import "testing"

func TestRecordSecretResolution_RoundTrip(t *testing.T) {
	rec, ctx := newTestRecorder(t)
	run, err := rec.BeginRun(ctx, "{}", "elspeth-canonical-v1", "")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	_, err = rec.RecordSecretResolution(ctx, RecordSecretResolutionParams{
		RunID:       run.RunID,
		EnvVar:      "API_KEY_ENV",
		Source:      "env",
		SecretName:  "API_KEY",
		LatencyMs:   1.5,
		Fingerprint: "deadbeef",
	})
	if err != nil {
		t.Fatalf("RecordSecretResolution: %v", err)
	}

	records, err := rec.GetSecretResolutionsForRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetSecretResolutionsForRun: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 secret resolution record, got %d", len(records))
	}
	if records[0].Fingerprint != "deadbeef" {
		t.Errorf("Fingerprint = %q, want deadbeef", records[0].Fingerprint)
	}
	if records[0].EnvVar != "API_KEY_ENV" {
		t.Errorf("EnvVar = %q, want API_KEY_ENV", records[0].EnvVar)
	}
}

func TestRecordSecretResolution_NeverPersistsPlaintext(t *testing.T) {
	rec, ctx := newTestRecorder(t)
	run, _ := rec.BeginRun(ctx, "{}", "elspeth-canonical-v1", "")

	const plaintext = "super-secret-value-should-not-appear"
	_, err := rec.RecordSecretResolution(ctx, RecordSecretResolutionParams{
		RunID:       run.RunID,
		EnvVar:      "X_ENV",
		Source:      "env",
		SecretName:  "X",
		Fingerprint: "abc123",
	})
	if err != nil {
		t.Fatalf("RecordSecretResolution: %v", err)
	}

	records, err := rec.GetSecretResolutionsForRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetSecretResolutionsForRun: %v", err)
	}
	for _, rr := range records {
		if rr.Fingerprint == plaintext {
			t.Fatal("stored fingerprint must never equal the plaintext secret value")
		}
	}
}
