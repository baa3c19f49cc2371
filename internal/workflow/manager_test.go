package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipnote/internal/jobs"
	"clipnote/internal/progress"
	"clipnote/internal/services"
	"clipnote/internal/stage"
	"clipnote/internal/testsupport"
	"clipnote/internal/workflow"
)

type stubHandler struct {
	name    string
	prepare func(job *jobs.Job) error
	execute func(ctx context.Context, job *jobs.Job, report stage.Reporter) error
}

func (h *stubHandler) Prepare(_ context.Context, job *jobs.Job) error {
	if h.prepare != nil {
		return h.prepare(job)
	}
	return nil
}

func (h *stubHandler) Execute(ctx context.Context, job *jobs.Job, report stage.Reporter) error {
	if h.execute != nil {
		return h.execute(ctx, job, report)
	}
	return nil
}

func (h *stubHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(h.name)
}

func passingHandlers() map[jobs.Stage]stage.Handler {
	return map[jobs.Stage]stage.Handler{
		jobs.StageDownloading:        &stubHandler{name: "download"},
		jobs.StageTranscribing:       &stubHandler{name: "transcribe"},
		jobs.StageExtractingKeyframe: &stubHandler{name: "keyframes"},
		jobs.StageGenerating:         &stubHandler{name: "generate"},
	}
}

func newManager(t *testing.T, handlers map[jobs.Stage]stage.Handler) (*workflow.Manager, *jobs.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := progress.NewBus(0)
	m := workflow.NewManagerWithHandlers(cfg, store, nil, bus, handlers)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Stop)
	return m, store
}

func waitForTerminal(t *testing.T, store *jobs.Store, id int64) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job.Stage.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %d did not reach a terminal stage", id)
	return nil
}

func TestSubmitQueuesJobInDownloadingStage(t *testing.T) {
	m, _ := newManager(t, passingHandlers())

	first, err := m.Submit(context.Background(), workflow.SubmitRequest{Source: "https://example.com/talk"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := m.Submit(context.Background(), workflow.SubmitRequest{Source: "https://example.com/other"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected distinct job ids, both %d", first.ID)
	}
	if first.Stage != jobs.StageDownloading {
		t.Fatalf("initial stage = %s, want %s", first.Stage, jobs.StageDownloading)
	}
	if first.ProgressPercent != 0 {
		t.Fatalf("initial progress = %v, want 0", first.ProgressPercent)
	}
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	m, _ := newManager(t, passingHandlers())

	_, err := m.Submit(context.Background(), workflow.SubmitRequest{Source: "   "})
	if err == nil {
		t.Fatal("expected error for empty source")
	}
	if services.KindOf(err) != services.KindSourceInvalid {
		t.Fatalf("kind = %s, want %s", services.KindOf(err), services.KindSourceInvalid)
	}

	_, err = m.Submit(context.Background(), workflow.SubmitRequest{Source: "ftp://example.com/x"})
	if services.KindOf(err) != services.KindSourceInvalid {
		t.Fatalf("kind = %s, want %s for unsupported scheme", services.KindOf(err), services.KindSourceInvalid)
	}

	_, err = m.Submit(context.Background(), workflow.SubmitRequest{Source: "https://example.com/talk", Style: "screenplay"})
	if err == nil || !strings.Contains(err.Error(), "style") {
		t.Fatalf("expected style rejection, got %v", err)
	}
}

func TestJobRunsThroughAllStages(t *testing.T) {
	var mu sync.Mutex
	var order []jobs.Stage
	handlers := map[jobs.Stage]stage.Handler{}
	for _, st := range []jobs.Stage{jobs.StageDownloading, jobs.StageTranscribing, jobs.StageExtractingKeyframe, jobs.StageGenerating} {
		st := st
		handlers[st] = &stubHandler{
			name: string(st),
			execute: func(_ context.Context, job *jobs.Job, report stage.Reporter) error {
				mu.Lock()
				order = append(order, st)
				mu.Unlock()
				report.Report(100, string(st)+" done")
				if st == jobs.StageGenerating {
					job.Document = "# Notes"
				}
				return nil
			},
		}
	}
	m, store := newManager(t, handlers)

	job, err := m.Submit(context.Background(), workflow.SubmitRequest{Source: "https://example.com/talk"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitForTerminal(t, store, job.ID)

	if final.Stage != jobs.StageCompleted {
		t.Fatalf("stage = %s (%s), want completed", final.Stage, final.ErrorMessage)
	}
	if final.ProgressPercent != 100 {
		t.Fatalf("progress = %v, want 100", final.ProgressPercent)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []jobs.Stage{jobs.StageDownloading, jobs.StageTranscribing, jobs.StageExtractingKeyframe, jobs.StageGenerating}
	if len(order) != len(want) {
		t.Fatalf("executed stages = %v, want %v", order, want)
	}
	for i, st := range want {
		if order[i] != st {
			t.Fatalf("stage %d = %s, want %s", i, order[i], st)
		}
	}
	record, err := store.HistoryByJobID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("HistoryByJobID: %v", err)
	}
	if record.Document != "# Notes" {
		t.Fatalf("history document = %q", record.Document)
	}
}

func TestProgressRemapsStagePercentAndNeverDecreases(t *testing.T) {
	handlers := passingHandlers()
	handlers[jobs.StageDownloading] = &stubHandler{
		name: "download",
		execute: func(_ context.Context, _ *jobs.Job, report stage.Reporter) error {
			report.Report(50, "halfway")
			report.Report(20, "stale update")
			return nil
		},
	}
	m, store := newManager(t, handlers)

	job, err := m.Submit(context.Background(), workflow.SubmitRequest{Source: "https://example.com/talk"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForTerminal(t, store, job.ID)

	events := m.Bus().Since(job.ID, 0)
	if len(events) == 0 {
		t.Fatal("no events published")
	}
	sawHalfway := false
	last := -1.0
	for _, evt := range events {
		if evt.Percent < last {
			t.Fatalf("progress decreased from %v to %v (%q)", last, evt.Percent, evt.Message)
		}
		last = evt.Percent
		// Download weight 15 of 100: stage-local 50% lands at 7.5 overall.
		if evt.Message == "halfway" && evt.Percent == 7.5 {
			sawHalfway = true
		}
	}
	if !sawHalfway {
		t.Fatal("expected remapped halfway event at 7.5 percent")
	}
	final := events[len(events)-1]
	if !final.Terminal() || final.Percent != 100 {
		t.Fatalf("final event = %+v, want terminal at 100", final)
	}
}

func TestStageFailureClassifiesAndStops(t *testing.T) {
	var keyframesRan atomic.Bool
	handlers := passingHandlers()
	handlers[jobs.StageTranscribing] = &stubHandler{
		name: "transcribe",
		execute: func(context.Context, *jobs.Job, stage.Reporter) error {
			return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "request transcript", "Provider rejected the API key", errors.New("401"))
		},
	}
	handlers[jobs.StageExtractingKeyframe] = &stubHandler{
		name: "keyframes",
		execute: func(context.Context, *jobs.Job, stage.Reporter) error {
			keyframesRan.Store(true)
			return nil
		},
	}
	m, store := newManager(t, handlers)

	job, err := m.Submit(context.Background(), workflow.SubmitRequest{Source: "https://example.com/talk"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitForTerminal(t, store, job.ID)

	if final.Stage != jobs.StageError {
		t.Fatalf("stage = %s, want error", final.Stage)
	}
	if final.ErrorKind != string(services.KindTranscriptionFailed) {
		t.Fatalf("error kind = %q, want %q", final.ErrorKind, services.KindTranscriptionFailed)
	}
	if !strings.Contains(final.ErrorMessage, "API key") {
		t.Fatalf("error message = %q", final.ErrorMessage)
	}
	if keyframesRan.Load() {
		t.Fatal("keyframe stage ran after failure")
	}

	events := m.Bus().Since(job.ID, 0)
	last := events[len(events)-1]
	if !last.Terminal() || last.ErrorKind != string(services.KindTranscriptionFailed) {
		t.Fatalf("terminal event = %+v", last)
	}
}

func TestCancelHonoredAtStageBoundary(t *testing.T) {
	downloadStarted := make(chan struct{})
	releaseDownload := make(chan struct{})
	var transcribeRan atomic.Bool
	handlers := passingHandlers()
	handlers[jobs.StageDownloading] = &stubHandler{
		name: "download",
		execute: func(ctx context.Context, _ *jobs.Job, _ stage.Reporter) error {
			close(downloadStarted)
			select {
			case <-releaseDownload:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	handlers[jobs.StageTranscribing] = &stubHandler{
		name: "transcribe",
		execute: func(context.Context, *jobs.Job, stage.Reporter) error {
			transcribeRan.Store(true)
			return nil
		},
	}
	m, store := newManager(t, handlers)

	job, err := m.Submit(context.Background(), workflow.SubmitRequest{Source: "https://example.com/talk"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-downloadStarted
	if err := m.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(releaseDownload)

	final := waitForTerminal(t, store, job.ID)
	if final.ErrorKind != string(services.KindCancelled) {
		t.Fatalf("error kind = %q, want %q", final.ErrorKind, services.KindCancelled)
	}
	if final.ErrorMessage != jobs.CancelMessage {
		t.Fatalf("error message = %q, want %q", final.ErrorMessage, jobs.CancelMessage)
	}
	if transcribeRan.Load() {
		t.Fatal("transcribe stage ran after cancel")
	}

	if err := m.Cancel(context.Background(), job.ID); err == nil {
		t.Fatal("expected error cancelling a finished job")
	}
}

func TestRetrySchedulesFailedJob(t *testing.T) {
	var attempts atomic.Int64
	handlers := passingHandlers()
	handlers[jobs.StageDownloading] = &stubHandler{
		name: "download",
		execute: func(context.Context, *jobs.Job, stage.Reporter) error {
			if attempts.Add(1) == 1 {
				return services.Wrap(services.ErrDownloadFailed, "downloading", "fetch media", "Source fetch failed", errors.New("boom"))
			}
			return nil
		},
	}
	m, store := newManager(t, handlers)

	job, err := m.Submit(context.Background(), workflow.SubmitRequest{Source: "https://example.com/talk"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	failed := waitForTerminal(t, store, job.ID)
	if failed.ErrorKind != string(services.KindDownloadFailed) {
		t.Fatalf("error kind = %q", failed.ErrorKind)
	}

	count, err := m.Retry(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if count != 1 {
		t.Fatalf("retried %d jobs, want 1", count)
	}
	final := waitForTerminal(t, store, job.ID)
	if final.Stage != jobs.StageCompleted {
		t.Fatalf("stage after retry = %s (%s)", final.Stage, final.ErrorMessage)
	}
	if n := attempts.Load(); n != 2 {
		t.Fatalf("download ran %d times, want 2", n)
	}
}
