package destination

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/candlepin/virt-who/datastore"
	"github.com/candlepin/virt-who/report"
	"github.com/candlepin/virt-who/status"
	"github.com/candlepin/virt-who/worker"
)

func newTempStatusStore(t *testing.T) *status.Store {
	t.Helper()
	dir := t.TempDir()
	return status.New(filepath.Join(dir, "status.lock"), filepath.Join(dir, "status.json"))
}

func assocReport(config string, hvID string, guestUUID string) *report.HostGuestAssociationReport {
	hv := report.Hypervisor{
		HypervisorID: hvID,
		Guests:       []report.Guest{report.NewGuest(guestUUID, "fake", report.StateRunning)},
	}
	var hvs []report.Hypervisor
	if hvID != "" {
		hvs = append(hvs, hv)
	}
	return report.NewHostGuestAssociationReport(config, hvs, nil)
}

func TestCycleDeduplicatesUnchangedReports(t *testing.T) {
	store := datastore.New()
	store.Put("src", assocReport("src", "hv-1", "g1"))

	client := NewFakeClient()
	w := NewWorker("dest", client, store, nil, []string{"src"}, time.Minute, true, false, false, worker.NewTerminate())

	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if len(client.Queue) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(client.Queue))
	}

	// Same content again: should be suppressed.
	store.Put("src", assocReport("src", "hv-1", "g1"))
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(client.Queue) != 1 {
		t.Fatalf("expected dedup to suppress resubmission, got %d submissions", len(client.Queue))
	}
}

func TestCycleResendsOnZeroHypervisorReset(t *testing.T) {
	store := datastore.New()
	store.Put("src", assocReport("src", "hv-1", "g1"))

	client := NewFakeClient()
	w := NewWorker("dest", client, store, nil, []string{"src"}, time.Minute, true, false, false, worker.NewTerminate())
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	// Zero-hypervisor reset: submits nothing this cycle, only clears the
	// recorded hash (spec.md §8 scenario 4).
	store.Put("src", assocReport("src", "", ""))
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(client.Queue) != 1 {
		t.Fatalf("expected the zero-hypervisor reset cycle to submit nothing, got %d submissions", len(client.Queue))
	}

	// Identical to the first report: must resend since the hash was reset.
	store.Put("src", assocReport("src", "hv-1", "g1"))
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(client.Queue) != 2 {
		t.Fatalf("expected 2 submissions (reset forces resend), got %d", len(client.Queue))
	}
}

func TestSubmitAndPollAsyncBackoff(t *testing.T) {
	store := datastore.New()
	store.Put("src", assocReport("src", "hv-1", "g1"))

	client := NewFakeClient()
	client.Async = true
	client.PollsUntilDone = 2

	w := NewWorker("dest", client, store, nil, []string{"src"}, time.Hour, false, false, false, worker.NewTerminate())
	w.JobPollInterval = time.Millisecond

	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if len(w.pending) != 1 {
		t.Fatalf("expected a pending submission for src, got %d", len(w.pending))
	}
	if _, recorded := w.lastHashes["src"]; recorded {
		t.Fatalf("hash must not be recorded while the job is still pending")
	}

	time.Sleep(2 * time.Millisecond)
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("second cycle (poll 1, still processing): %v", err)
	}
	if len(w.pending) != 1 {
		t.Fatalf("job should still be pending after the first poll")
	}
	if len(client.Queue) != 1 {
		t.Fatalf("a pending source must not be resubmitted, got %d submissions", len(client.Queue))
	}

	time.Sleep(2 * time.Millisecond)
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("third cycle (poll 2, finishes): %v", err)
	}
	if len(w.pending) != 0 {
		t.Fatalf("expected the pending entry to clear once Finished")
	}
	if w.lastHashes["src"] == "" {
		t.Fatalf("expected the hash to be recorded once the job finished")
	}
}

func TestSubmitDoesNotRecordHashOnFailedJob(t *testing.T) {
	store := datastore.New()
	store.Put("src", assocReport("src", "hv-1", "g1"))

	client := NewFakeClient()
	client.Async = true
	client.PollsUntilDone = 1
	client.FinishAsFailed = true

	w := NewWorker("dest", client, store, nil, []string{"src"}, time.Hour, false, false, false, worker.NewTerminate())
	w.JobPollInterval = time.Millisecond

	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("second cycle (poll, fails): %v", err)
	}
	if len(w.pending) != 0 {
		t.Fatalf("expected the pending entry to clear after Failed")
	}
	if _, recorded := w.lastHashes["src"]; recorded {
		t.Fatalf("a Failed job must not record a last-sent hash")
	}

	// Unchanged content should be retried since nothing was recorded.
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("third cycle: %v", err)
	}
	if len(client.Queue) != 2 {
		t.Fatalf("expected a retry submission after the failed job, got %d", len(client.Queue))
	}
}

func TestHandleSubmitErrorRateLimit(t *testing.T) {
	store := datastore.New()
	w := NewWorker("dest", NewFakeClient(), store, nil, nil, time.Millisecond, false, false, false, worker.NewTerminate())
	err := w.handleSubmitError(context.Background(), "src", &RateLimitError{RetryAfter: time.Millisecond})
	if err != nil {
		t.Fatalf("rate limit should be absorbed, not returned: %v", err)
	}
}

func TestCyclePropagatesOwnedSourceErrorInOneshot(t *testing.T) {
	store := datastore.New()
	store.Put("src", report.NewErrorReport("src", context.DeadlineExceeded))

	w := NewWorker("dest", NewFakeClient(), store, nil, []string{"src"}, time.Minute, true, false, false, worker.NewTerminate())
	if err := w.cycle(context.Background()); err == nil {
		t.Fatalf("expected oneshot cycle to abort on an owned source's error report")
	}
}

func TestHeartbeatMergesPersistedStatusAndRecordsSuccess(t *testing.T) {
	store := datastore.New()
	client := NewFakeClient()
	statusStore := newTempStatusStore(t)
	if err := statusStore.RecordDestinationSuccess(context.Background(), "dest", map[string]any{"lastJobId": "J1"}); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	w := NewWorker("dest", client, store, statusStore, []string{"src"}, time.Minute, false, true, false, worker.NewTerminate())
	if err := w.cycle(context.Background()); err != nil {
		t.Fatalf("heartbeat cycle: %v", err)
	}
	if len(client.Heartbeats()) != 1 {
		t.Fatalf("expected 1 heartbeat, got %d", len(client.Heartbeats()))
	}
	if got := client.Heartbeats()[0].Destination["lastJobId"]; got != "J1" {
		t.Fatalf("expected persisted lastJobId to be merged into the heartbeat, got %v", got)
	}

	snap, err := statusStore.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, ok := snap.Destinations["dest"]; !ok {
		t.Fatalf("expected heartbeat success to be persisted under %q", "dest")
	}
}
