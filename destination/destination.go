// Package destination implements the destination worker side of virt-who:
// one worker per distinct DestinationInfo, batching and deduplicating
// reports collected from the destination's owned sources and submitting
// them through a Client (spec.md §4.7).
package destination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"

	"github.com/candlepin/virt-who/datastore"
	"github.com/candlepin/virt-who/report"
	"github.com/candlepin/virt-who/status"
	"github.com/candlepin/virt-who/worker"
)

// MinimumJobPollInterval is the floor on the async job-poll backoff. When a
// rate-limit response carries no retry-after, the worker waits twice this.
const MinimumJobPollInterval = 10 * time.Second

// JobHandle is returned by an asynchronous Client submission; the worker
// polls CheckJobState until the phase is terminal.
type JobHandle struct {
	JobID string
}

// RateLimitError signals a 429-equivalent response. RetryAfter, if nonzero,
// is honored verbatim; otherwise the worker waits 2×MinimumJobPollInterval.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Client is the capability every destination (subscription-manager/SAM,
// Satellite 6, Satellite 5) presents to the core.
type Client interface {
	// SendGuestList submits a single GuestListReport. Satellite 5 rejects
	// this kind permanently; its Client.SendGuestList should return
	// ErrUnsupported.
	SendGuestList(ctx context.Context, r *report.GuestListReport) error
	// HypervisorCheckin submits a batch of HostGuestAssociationReports
	// (one per owned source) in a single call, tagged with a correlation
	// ID for cross-system request tracing, returning either a terminal
	// phase (synchronous destinations) or a JobHandle to poll.
	HypervisorCheckin(ctx context.Context, correlationID string, reports []*report.HostGuestAssociationReport) (report.Phase, *JobHandle, error)
	// CheckJobState polls an async submission's status.
	CheckJobState(ctx context.Context, job *JobHandle) (report.Phase, error)
	// Heartbeat reports destination worker liveness in status mode, in
	// place of a checkin.
	Heartbeat(ctx context.Context, correlationID string, status *report.StatusReport) error
}

// ErrUnsupported is returned by a Client method the destination type does
// not implement (e.g. Satellite 5's SendGuestList).
var ErrUnsupported = errors.New("destination: operation not supported")

// pendingSubmission tracks one owned source's in-flight async checkin. While
// pending, the source is skipped entirely on each wake until its job reaches
// a terminal phase (spec.md §4.7).
type pendingSubmission struct {
	job      *JobHandle
	hash     string
	backoff  time.Duration
	nextPoll time.Time
}

// Worker is one destination worker, owning a fixed set of source config
// names and submitting their reports through Client on a cadence.
type Worker struct {
	*worker.IntervalThread

	Name            string
	Client          Client
	Store           *datastore.Datastore
	StatusStore     *status.Store
	Sources         []string
	Interval        time.Duration
	Oneshot         bool
	Status          bool
	PerSource       bool          // Satellite 5: one HypervisorCheckin call per source, not batched
	JobPollInterval time.Duration // floor on async job-poll backoff; defaults to MinimumJobPollInterval

	lastHashes map[string]string
	pending    map[string]*pendingSubmission
	started    bool
}

// NewWorker constructs a destination Worker. statusStore may be nil when
// statusMode is false.
func NewWorker(name string, client Client, store *datastore.Datastore, statusStore *status.Store, sources []string, interval time.Duration, oneshot, statusMode, perSource bool, external *worker.Terminate) *Worker {
	return &Worker{
		IntervalThread:  worker.New(name, external),
		Name:            name,
		Client:          client,
		Store:           store,
		StatusStore:     statusStore,
		Sources:         sources,
		Interval:        interval,
		Oneshot:         oneshot,
		Status:          statusMode,
		PerSource:       perSource,
		JobPollInterval: MinimumJobPollInterval,
		lastHashes:      make(map[string]string),
		pending:         make(map[string]*pendingSubmission),
	}
}

// Run collects reports from the worker's owned sources on an initial
// bounded wait and then on Interval, deduplicates via content hash, and
// submits what changed.
func (w *Worker) Run(ctx context.Context) error {
	return w.RunLoop(ctx, w.Interval, w.Oneshot, w.cycle)
}

// cycle advances any in-flight async submissions, gathers one report per
// owned source, drops unchanged/still-pending/zero-hypervisor-reset ones,
// and submits the remainder.
func (w *Worker) cycle(ctx context.Context) error {
	logger := log.WithFunc("destination.cycle")

	if w.Status {
		return w.heartbeat(ctx)
	}

	justResolved := w.pollPending(ctx)

	reports, firstPass := w.collect(ctx)
	if firstPass {
		w.started = true
	}

	var assoc []*report.HostGuestAssociationReport
	var guestLists []*report.GuestListReport
	batchHashes := make(map[string]string)
	sawAny := false

	for _, name := range w.Sources {
		r, ok := reports[name]
		if !ok {
			continue
		}
		sawAny = true

		if er, ok := r.(*report.ErrorReport); ok {
			if w.Oneshot {
				return fmt.Errorf("owned source %q failed: %w", name, er)
			}
			logger.Warnf(ctx, "owned source %q reported an error, skipping this cycle: %v", name, er)
			continue
		}

		if _, ok := w.pending[name]; ok {
			// A prior submission for this source is still being polled; the
			// job must progress before a new report from it is submitted.
			continue
		}
		if justResolved[name] {
			// The job for this source just reached a terminal phase during
			// this same wake's poll; resubmission waits for the next cycle
			// (spec.md §8 scenario 2).
			continue
		}

		hash, err := r.Hash()
		if err != nil {
			logger.Errorf(ctx, "hashing report from %q: %v", name, err)
			continue
		}

		switch rep := r.(type) {
		case *report.HostGuestAssociationReport:
			assocList := rep.Association()
			if len(assocList) == 0 {
				// Zero-hypervisor reset: clear the last-sent hash so the
				// next non-empty report isn't mistaken for a duplicate, but
				// submit nothing for this source this cycle (spec.md §4.7,
				// §8 scenario 4).
				delete(w.lastHashes, name)
				continue
			}
			if !firstPass && w.lastHashes[name] == hash {
				continue // unchanged since the last successful submission
			}
			assoc = append(assoc, rep)
			batchHashes[name] = hash
		case *report.GuestListReport:
			if !firstPass && w.lastHashes[name] == hash {
				continue
			}
			guestLists = append(guestLists, rep)
			batchHashes[name] = hash
		default:
			continue
		}
	}

	if !sawAny && w.Oneshot {
		return fmt.Errorf("no data available yet from any owned source")
	}

	for _, gl := range guestLists {
		logger.Infof(ctx, "destination %q submitting guest list for %q: %d guest(s)", w.Name, gl.Config(), len(gl.Guests))
		if err := w.Client.SendGuestList(ctx, gl); err != nil {
			if errors.Is(err, ErrUnsupported) {
				logger.Warnf(ctx, "destination %q does not accept guest lists, dropping report from %q", w.Name, gl.Config())
				continue
			}
			return w.handleSubmitError(ctx, gl.Config(), err)
		}
		w.lastHashes[gl.Config()] = batchHashes[gl.Config()]
	}

	if len(assoc) == 0 {
		return nil
	}

	if w.PerSource {
		for _, a := range assoc {
			if err := w.submit(ctx, []*report.HostGuestAssociationReport{a}, batchHashes); err != nil {
				return err
			}
		}
		return nil
	}
	return w.submit(ctx, assoc, batchHashes)
}

// collect returns one report per owned source. On the worker's first wake
// it performs the bounded initial-collection wait (spec.md §4.7): poll the
// datastore for up to one interval, 1s between polls, collecting whatever
// source keys report non-empty, with no dedup applied on this pass. On
// every later wake it is a single pass over the datastore.
func (w *Worker) collect(ctx context.Context) (map[string]report.Report, bool) {
	if w.started {
		reports := make(map[string]report.Report, len(w.Sources))
		for _, name := range w.Sources {
			if r, err := w.Store.Get(name); err == nil {
				reports[name] = r
			}
		}
		return reports, false
	}
	return w.gatherInitial(ctx), true
}

func (w *Worker) gatherInitial(ctx context.Context) map[string]report.Report {
	deadline := time.Now().Add(w.Interval)
	reports := make(map[string]report.Report, len(w.Sources))
	for {
		for _, name := range w.Sources {
			if _, ok := reports[name]; ok {
				continue
			}
			if r, err := w.Store.Get(name); err == nil {
				reports[name] = r
			}
		}
		if len(reports) == len(w.Sources) || w.IsTerminated() || !time.Now().Before(deadline) {
			return reports
		}
		w.Wait(ctx, time.Second)
	}
}

// pollPending advances every in-flight async submission by at most one poll
// per wake, never in a busy loop (spec.md §4.7). A Finished job records its
// hash as last-sent; a Failed/Canceled job is discarded without recording,
// so a later cycle resubmits fresh data (spec.md §7, §8 scenario 2). It
// returns the set of source names whose job reached a terminal phase this
// wake — the caller skips those sources this cycle too, since "this same
// wake's job transition" and "this same wake's fresh report" race with no
// defined order (spec.md §8 scenario 2: resubmission happens "next cycle").
func (w *Worker) pollPending(ctx context.Context) map[string]bool {
	logger := log.WithFunc("destination.pollPending")
	now := time.Now()
	resolved := make(map[string]bool)
	for name, p := range w.pending {
		if now.Before(p.nextPoll) {
			continue
		}
		phase, err := w.Client.CheckJobState(ctx, p.job)
		if err != nil {
			var rl *RateLimitError
			if errors.As(err, &rl) {
				if rl.RetryAfter > 0 {
					p.backoff = rl.RetryAfter
				} else {
					p.backoff = 2 * w.jobPollInterval()
				}
				p.nextPoll = now.Add(p.backoff)
				continue
			}
			logger.Errorf(ctx, "polling job %s for %q: %v", p.job.JobID, name, err)
			continue
		}
		switch {
		case phase == report.PhaseFinished:
			w.lastHashes[name] = p.hash
			delete(w.pending, name)
			resolved[name] = true
		case phase.Terminal():
			delete(w.pending, name)
			resolved[name] = true
		default:
			p.backoff *= 2
			p.nextPoll = now.Add(p.backoff)
		}
	}
	return resolved
}

// heartbeat implements the status-destination behavior (spec.md §4.7): in
// place of a checkin it merges persisted previous-run status into an
// outgoing Status report and calls the client's heartbeat method.
func (w *Worker) heartbeat(ctx context.Context) error {
	logger := log.WithFunc("destination.heartbeat")

	data := map[string]any{"sources": w.Sources}
	if w.StatusStore != nil {
		if snap, err := w.StatusStore.Snapshot(ctx); err != nil {
			logger.Warnf(ctx, "loading persisted status for %q: %v", w.Name, err)
		} else if prev, ok := snap.Destinations[w.Name]; ok {
			data["lastSuccessfulSend"] = prev.LastSuccess
			if prev.LastError != "" {
				data["lastError"] = prev.LastError
			}
			for k, v := range prev.Data {
				data[k] = v
			}
		}
	}
	if len(w.pending) > 0 {
		jobs := make(map[string]string, len(w.pending))
		for name, p := range w.pending {
			jobs[name] = p.job.JobID
		}
		data["pendingJobs"] = jobs
	}

	sr := report.NewStatusReport(w.Name)
	sr.Destination = data

	if err := w.Client.Heartbeat(ctx, uuid.NewString(), sr); err != nil {
		if w.Oneshot {
			return fmt.Errorf("heartbeat for %q failed: %w", w.Name, err)
		}
		logger.Warnf(ctx, "heartbeat for %q failed: %v", w.Name, err)
		return nil
	}

	if w.StatusStore != nil {
		if err := w.StatusStore.RecordDestinationSuccess(ctx, w.Name, data); err != nil {
			logger.Warnf(ctx, "persisting status for %q: %v", w.Name, err)
		}
	}
	return nil
}

func (w *Worker) handleSubmitError(ctx context.Context, config string, err error) error {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		wait := rl.RetryAfter
		if wait <= 0 {
			wait = 2 * w.jobPollInterval()
		}
		w.Wait(ctx, wait)
		return nil
	}
	delete(w.lastHashes, config)
	return fmt.Errorf("submitting report for %q: %w", config, err)
}

// jobPollInterval returns the configured floor, defaulting to
// MinimumJobPollInterval when unset (e.g. a Worker built without NewWorker).
func (w *Worker) jobPollInterval() time.Duration {
	if w.JobPollInterval > 0 {
		return w.JobPollInterval
	}
	return MinimumJobPollInterval
}

// submit sends one hypervisor-checkin batch. The per-source hash is
// recorded as last-sent only once the submission is known to have reached
// Finished — synchronously here, or later via pollPending for an async job
// (spec.md §4.7, §8 scenario 2: do not record on Failed/Canceled or on any
// other submission error, so a retry is attempted with fresh data).
func (w *Worker) submit(ctx context.Context, batch []*report.HostGuestAssociationReport, hashes map[string]string) error {
	hvCount, guestCount := batchCounts(batch)
	log.WithFunc("destination.submit").Infof(ctx, "destination %q submitting %d hypervisor(s)/%d guest(s) across %d source(s)", w.Name, hvCount, guestCount, len(batch))

	phase, job, err := w.Client.HypervisorCheckin(ctx, uuid.NewString(), batch)
	if err != nil {
		return w.handleSubmitError(ctx, batch[0].Config(), err)
	}

	if phase.Terminal() && phase != report.PhaseFinished {
		// Failed/Canceled synchronously: discard without recording.
		return nil
	}
	if job == nil || phase == report.PhaseFinished {
		for _, a := range batch {
			w.lastHashes[a.Config()] = hashes[a.Config()]
		}
		return nil
	}

	for _, a := range batch {
		w.pending[a.Config()] = &pendingSubmission{
			job:      job,
			hash:     hashes[a.Config()],
			backoff:  w.jobPollInterval(),
			nextPoll: time.Now().Add(w.jobPollInterval()),
		}
	}
	return nil
}

func batchCounts(batch []*report.HostGuestAssociationReport) (hypervisors, guests int) {
	for _, r := range batch {
		assoc := r.Association()
		hypervisors += len(assoc)
		for _, h := range assoc {
			guests += len(h.Guests)
		}
	}
	return hypervisors, guests
}
