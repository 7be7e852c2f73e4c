package destination

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/candlepin/virt-who/report"
)

// FakeClient is an in-memory Client standing in for a real SAM/Satellite 6
// server in tests: every HypervisorCheckin call is recorded on Queue, mirroring
// the reference test harness's behavior of pushing each incoming payload onto
// a queue for the test to inspect. Jobs transition from Processing to
// Finished after PollsUntilDone polls, or to Failed if FinishAsFailed is set.
type FakeClient struct {
	mu sync.Mutex

	Queue              [][]*report.HostGuestAssociationReport
	CorrelationIDs     []string
	RejectGuestLists   bool
	Async              bool
	PollsUntilDone     int
	FinishAsFailed     bool // job reaches Failed instead of Finished after PollsUntilDone polls
	RateLimitFirstCall bool
	RetryAfter         time.Duration

	polls      map[string]int
	nextJob    int
	rlFired    bool
	sentList   []*report.GuestListReport
	heartbeats []*report.StatusReport
}

func NewFakeClient() *FakeClient {
	return &FakeClient{polls: make(map[string]int)}
}

func (f *FakeClient) SendGuestList(ctx context.Context, r *report.GuestListReport) error {
	if f.RejectGuestLists {
		return ErrUnsupported
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentList = append(f.sentList, r)
	return nil
}

func (f *FakeClient) HypervisorCheckin(ctx context.Context, correlationID string, reports []*report.HostGuestAssociationReport) (report.Phase, *JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RateLimitFirstCall && !f.rlFired {
		f.rlFired = true
		return report.PhaseCreated, nil, &RateLimitError{RetryAfter: f.RetryAfter}
	}

	f.Queue = append(f.Queue, reports)
	f.CorrelationIDs = append(f.CorrelationIDs, correlationID)

	if !f.Async {
		return report.PhaseFinished, nil, nil
	}
	f.nextJob++
	id := strconv.Itoa(f.nextJob)
	f.polls[id] = 0
	return report.PhaseProcessing, &JobHandle{JobID: id}, nil
}

func (f *FakeClient) CheckJobState(ctx context.Context, job *JobHandle) (report.Phase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[job.JobID]++
	if f.polls[job.JobID] >= f.PollsUntilDone {
		if f.FinishAsFailed {
			return report.PhaseFailed, nil
		}
		return report.PhaseFinished, nil
	}
	return report.PhaseProcessing, nil
}

// Heartbeat records a status-mode report in place of a checkin.
func (f *FakeClient) Heartbeat(ctx context.Context, correlationID string, status *report.StatusReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CorrelationIDs = append(f.CorrelationIDs, correlationID)
	f.heartbeats = append(f.heartbeats, status)
	return nil
}

// SentGuestLists returns every GuestListReport accepted so far.
func (f *FakeClient) SentGuestLists() []*report.GuestListReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*report.GuestListReport(nil), f.sentList...)
}

// Heartbeats returns every status report accepted so far.
func (f *FakeClient) Heartbeats() []*report.StatusReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*report.StatusReport(nil), f.heartbeats...)
}
