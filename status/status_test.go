package status

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRecordAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "status.lock"), filepath.Join(dir, "status.json"))
	ctx := context.Background()

	if err := s.RecordSourceSuccess(ctx, "esx1", map[string]any{"guests": 3}); err != nil {
		t.Fatalf("RecordSourceSuccess: %v", err)
	}
	if err := s.RecordDestinationSuccess(ctx, "sam", nil); err != nil {
		t.Fatalf("RecordDestinationSuccess: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, ok := snap.Sources["esx1"]; !ok {
		t.Fatalf("expected esx1 in sources, got %+v", snap.Sources)
	}
	if _, ok := snap.Destinations["sam"]; !ok {
		t.Fatalf("expected sam in destinations, got %+v", snap.Destinations)
	}
}

func TestRecordSourceErrorPreservesLastSuccess(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "status.lock"), filepath.Join(dir, "status.json"))
	ctx := context.Background()

	if err := s.RecordSourceSuccess(ctx, "esx1", nil); err != nil {
		t.Fatalf("RecordSourceSuccess: %v", err)
	}
	snap, _ := s.Snapshot(ctx)
	success := snap.Sources["esx1"].LastSuccess

	if err := s.RecordSourceError(ctx, "esx1", "connection refused"); err != nil {
		t.Fatalf("RecordSourceError: %v", err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Sources["esx1"].LastError != "connection refused" {
		t.Fatalf("unexpected LastError: %q", snap.Sources["esx1"].LastError)
	}
	if !snap.Sources["esx1"].LastSuccess.Equal(success) {
		t.Fatalf("expected LastSuccess to be preserved across an error record")
	}
}
