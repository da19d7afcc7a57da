package pluginctx

import (
	"context"
	"errors"
	"testing"
)

func TestTelemetryEmit_NoopWithoutSink(t *testing.T) {
	c := New("run1", "node1", "csv_source", nil, nil, nil)
	c.TelemetryEmit(TelemetryEvent{Kind: "row"}) // must not panic
}

func TestTelemetryEmit_SnapshotsAttributesAtEmitTime(t *testing.T) {
	var captured TelemetryEvent
	c := New("run1", "node1", "csv_source", nil, nil, func(e TelemetryEvent) { captured = e })

	attrs := map[string]any{"plugin.name": "csv_source"}
	c.TelemetryEmit(TelemetryEvent{Kind: "row", Attributes: attrs})

	attrs["plugin.name"] = "mutated-after-emit"
	if captured.Attributes["plugin.name"] != "csv_source" {
		t.Errorf("captured attribute mutated after emit: got %v", captured.Attributes["plugin.name"])
	}
}

func TestTelemetryEmit_DistinguishesNilFromEmptyTokenIDs(t *testing.T) {
	var events []TelemetryEvent
	c := New("run1", "node1", "batch_llm", nil, nil, func(e TelemetryEvent) { events = append(events, e) })

	c.TelemetryEmit(TelemetryEvent{Kind: "aggregation", TokenIDs: nil})
	c.TelemetryEmit(TelemetryEvent{Kind: "aggregation", TokenIDs: []string{}})

	if events[0].TokenIDs != nil {
		t.Error("expected nil TokenIDs to remain nil (no tracking)")
	}
	if events[1].TokenIDs == nil {
		t.Error("expected explicit empty batch to remain a non-nil empty slice")
	}
}

func TestRecordValidationError_RequiresLandscape(t *testing.T) {
	c := New("run1", "node1", "csv_source", nil, nil, nil)
	_, err := c.RecordValidationError(context.Background(), map[string]any{}, errors.New("bad"), "FIXED", "discard")
	if err == nil {
		t.Fatal("expected an error when no landscape recorder is attached")
	}
}

func TestCheckpoint_MergeGetClearRoundTrip(t *testing.T) {
	c := New("run1", "node1", "batch_sink", nil, nil, nil)
	ctx := context.Background()

	if err := c.UpdateCheckpoint(ctx, map[string]any{"cursor": "a"}); err != nil {
		t.Fatalf("UpdateCheckpoint: %v", err)
	}
	if err := c.UpdateCheckpoint(ctx, map[string]any{"count": 3.0}); err != nil {
		t.Fatalf("UpdateCheckpoint: %v", err)
	}

	cp, err := c.GetCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetCheckpoint: %v", err)
	}
	if cp["cursor"] != "a" || cp["count"] != 3.0 {
		t.Errorf("GetCheckpoint() = %+v, want merged cursor+count", cp)
	}

	if err := c.ClearCheckpoint(ctx); err != nil {
		t.Fatalf("ClearCheckpoint: %v", err)
	}
	cp, err = c.GetCheckpoint(ctx)
	if err != nil {
		t.Fatalf("GetCheckpoint after clear: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil checkpoint after Clear, got %+v", cp)
	}
}
