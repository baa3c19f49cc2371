package progress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"clipnote/internal/jobs"
	"clipnote/internal/progress"
)

func TestPublishAssignsMonotonicSequences(t *testing.T) {
	bus := progress.NewBus(8)

	first := bus.Publish(progress.Event{JobID: 1, Stage: jobs.StageDownloading, Percent: 5})
	second := bus.Publish(progress.Event{JobID: 1, Stage: jobs.StageDownloading, Percent: 10})

	if first.Sequence == 0 {
		t.Fatal("expected nonzero sequence")
	}
	if second.Sequence <= first.Sequence {
		t.Fatalf("expected increasing sequences, got %d then %d", first.Sequence, second.Sequence)
	}
}

func TestSinceReturnsOnlyNewerEvents(t *testing.T) {
	bus := progress.NewBus(8)

	bus.Publish(progress.Event{JobID: 3, Stage: jobs.StageDownloading, Percent: 10})
	marker := bus.Publish(progress.Event{JobID: 3, Stage: jobs.StageTranscribing, Percent: 20})
	bus.Publish(progress.Event{JobID: 3, Stage: jobs.StageTranscribing, Percent: 30})

	events := bus.Since(3, marker.Sequence)
	if len(events) != 1 {
		t.Fatalf("expected 1 event after marker, got %d", len(events))
	}
	if events[0].Percent != 30 {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestRingBufferDropsOldestEvents(t *testing.T) {
	bus := progress.NewBus(3)

	for i := 1; i <= 5; i++ {
		bus.Publish(progress.Event{JobID: 7, Stage: jobs.StageDownloading, Percent: float64(i)})
	}

	events := bus.Since(7, 0)
	if len(events) != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", len(events))
	}
	if events[0].Percent != 3 || events[2].Percent != 5 {
		t.Fatalf("expected oldest events dropped, got %+v", events)
	}
}

func TestFetchWaitsForNextEvent(t *testing.T) {
	bus := progress.NewBus(8)

	done := make(chan []progress.Event, 1)
	go func() {
		events, err := bus.Fetch(context.Background(), 9, 0, 10, true)
		if err != nil {
			t.Errorf("fetch: %v", err)
		}
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Publish(progress.Event{JobID: 9, Stage: jobs.StageGenerating, Percent: 90})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Percent != 90 {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not wake after publish")
	}
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	bus := progress.NewBus(8)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := bus.Fetch(ctx, 11, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("fetch did not return promptly after context expiry")
	}
}

func TestSubscribeReceivesAndCancelCloses(t *testing.T) {
	bus := progress.NewBus(8)

	ch, cancel := bus.Subscribe(5, 4)
	bus.Publish(progress.Event{JobID: 5, Stage: jobs.StageDownloading, Percent: 1})

	select {
	case evt := <-ch:
		if evt.Percent != 1 {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	cancel()
	if _, open := <-ch; open {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestTerminalEvent(t *testing.T) {
	evt := progress.Event{Stage: jobs.StageCompleted}
	if !evt.Terminal() {
		t.Fatal("completed stage should be terminal")
	}
	evt = progress.Event{Stage: jobs.StageTranscribing}
	if evt.Terminal() {
		t.Fatal("transcribing stage should not be terminal")
	}
}

func TestPublishSurvivesConcurrentSubscribeCancel(t *testing.T) {
	bus := progress.NewBus(32)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			bus.Publish(progress.Event{JobID: 7, Stage: jobs.StageDownloading, Percent: float64(i % 100)})
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, cancel := bus.Subscribe(7, 1)
				cancel()
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not finish")
	}
}
