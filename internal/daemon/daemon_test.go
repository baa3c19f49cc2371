package daemon_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"clipnote/internal/api"
	"clipnote/internal/config"
	"clipnote/internal/daemon"
	"clipnote/internal/jobs"
	"clipnote/internal/progress"
	"clipnote/internal/stage"
	"clipnote/internal/testsupport"
	"clipnote/internal/workflow"
)

type stubHandler struct {
	name    string
	execute func(ctx context.Context, job *jobs.Job, report stage.Reporter) error
}

func (h *stubHandler) Prepare(context.Context, *jobs.Job) error { return nil }

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
		jobs.StageGenerating: &stubHandler{
			name: "generate",
			execute: func(_ context.Context, job *jobs.Job, _ stage.Reporter) error {
				job.Document = "# Notes"
				return nil
			},
		},
	}
}

func startDaemon(t *testing.T, cfg *config.Config, handlers map[jobs.Stage]stage.Handler) (*daemon.Daemon, *api.Client) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	wf := workflow.NewManagerWithHandlers(cfg, store, nil, progress.NewBus(0), handlers)
	d, err := daemon.New(cfg, store, nil, wf)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, api.NewClient("http://"+d.Addr(), cfg.Paths.APIToken)
}

func waitForCompleted(t *testing.T, client *api.Client, id int64) api.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := client.Job(context.Background(), id)
		if err != nil {
			t.Fatalf("client.Job: %v", err)
		}
		if st, ok := jobs.ParseStage(job.Progress.Stage); ok && st.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %d did not finish", id)
	return api.Job{}
}

func TestSubmitAndFollowJobOverHTTP(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startDaemon(t, cfg, passingHandlers())

	job, err := client.Submit(context.Background(), api.SubmitRequest{Source: "https://example.com/talk", Style: "summary"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Progress.Stage != string(jobs.StageDownloading) {
		t.Fatalf("initial stage = %s", job.Progress.Stage)
	}

	final := waitForCompleted(t, client, job.ID)
	if final.Progress.Stage != string(jobs.StageCompleted) {
		t.Fatalf("stage = %s (%s)", final.Progress.Stage, final.ErrorMessage)
	}
	if final.Progress.Percent != 100 {
		t.Fatalf("percent = %v", final.Progress.Percent)
	}
	if final.Document != "# Notes" {
		t.Fatalf("document = %q", final.Document)
	}

	events, err := client.Events(context.Background(), job.ID, 0, 0, false)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events.Events) == 0 {
		t.Fatal("no events returned")
	}
	last := events.Events[len(events.Events)-1]
	if !last.Terminal() || last.Percent != 100 {
		t.Fatalf("terminal event = %+v", last)
	}
	if events.Next != last.Sequence {
		t.Fatalf("next cursor = %d, want %d", events.Next, last.Sequence)
	}

	records, err := client.History(context.Background())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 || records[0].JobID != job.ID {
		t.Fatalf("history = %+v", records)
	}
}

func TestStatusReportsStageHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startDaemon(t, cfg, passingHandlers())

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon not reported running")
	}
	if len(status.StageHealth) != 4 {
		t.Fatalf("stage health entries = %d, want 4", len(status.StageHealth))
	}
	for _, health := range status.StageHealth {
		if !health.Ready {
			t.Fatalf("stage %s not ready: %s", health.Name, health.Detail)
		}
	}
	if len(status.Dependencies) != 4 {
		t.Fatalf("dependency entries = %d, want 4", len(status.Dependencies))
	}
}

func TestSubmitValidationOverHTTP(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startDaemon(t, cfg, passingHandlers())

	if _, err := client.Submit(context.Background(), api.SubmitRequest{Source: "  "}); err == nil {
		t.Fatal("expected error for empty source")
	}
	_, err := client.Submit(context.Background(), api.SubmitRequest{Source: "https://example.com/talk", Style: "screenplay"})
	if err == nil || !strings.Contains(err.Error(), "style") {
		t.Fatalf("expected style rejection, got %v", err)
	}
	if err := client.Cancel(context.Background(), 9999); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found cancelling unknown job, got %v", err)
	}
}

func TestAuthTokenGuardsAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret"
	d, client := startDaemon(t, cfg, passingHandlers())

	resp, err := http.Get(fmt.Sprintf("http://%s/api/status", d.Addr()))
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status code = %d, want 401", resp.StatusCode)
	}

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("authenticated Status: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon not reported running")
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	d, _ := startDaemon(t, cfg, passingHandlers())
	_ = d

	wf := workflow.NewManagerWithHandlers(cfg, store, nil, progress.NewBus(0), passingHandlers())
	second, err := daemon.New(cfg, store, nil, wf)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestEventsLongPollWakesOnPublish(t *testing.T) {
	release := make(chan struct{})
	handlers := passingHandlers()
	handlers[jobs.StageDownloading] = &stubHandler{
		name: "download",
		execute: func(ctx context.Context, _ *jobs.Job, report stage.Reporter) error {
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
			report.Report(60, "media fetched")
			return nil
		},
	}
	cfg := testsupport.NewConfig(t)
	_, client := startDaemon(t, cfg, handlers)

	job, err := client.Submit(context.Background(), api.SubmitRequest{Source: "https://example.com/talk"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	initial, err := client.Events(context.Background(), job.ID, 0, 0, false)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}

	done := make(chan api.EventsResponse, 1)
	go func() {
		resp, fetchErr := client.Events(context.Background(), job.ID, initial.Next, 0, true)
		if fetchErr != nil {
			t.Errorf("long poll: %v", fetchErr)
		}
		done <- resp
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case resp := <-done:
		if len(resp.Events) == 0 {
			t.Fatal("long poll returned no events")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("long poll did not wake")
	}
	waitForCompleted(t, client, job.ID)
}
