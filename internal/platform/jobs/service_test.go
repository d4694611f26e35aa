package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"wfm/internal/platform/config"
)

type finished struct {
	jobType string
	status  string
	details map[string]any
}

type fakeRunLog struct {
	mu       sync.Mutex
	next     int
	types    map[string]string
	finished []finished
	startErr error
}

func newFakeRunLog() *fakeRunLog {
	return &fakeRunLog{types: map[string]string{}}
}

func (f *fakeRunLog) Start(_ context.Context, jobType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.next++
	id := string(rune('a' + f.next))
	f.types[id] = jobType
	return id, nil
}

func (f *fakeRunLog) Finish(_ context.Context, runID, status string, details []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var decoded map[string]any
	if err := json.Unmarshal(details, &decoded); err != nil {
		return err
	}
	f.finished = append(f.finished, finished{jobType: f.types[runID], status: status, details: decoded})
	return nil
}

func (f *fakeRunLog) snapshot() []finished {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]finished(nil), f.finished...)
}

func TestRunNowRecordsOutcome(t *testing.T) {
	runs := newFakeRunLog()
	svc := New(runs, nil, config.Config{})

	out, err := svc.RunNow(context.Background(), JobHourAccrual, func(context.Context) (any, error) {
		return map[string]int{"recordsAccrued": 4}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]int)["recordsAccrued"] != 4 {
		t.Fatalf("unexpected result %v", out)
	}

	boom := errors.New("boom")
	if _, err := svc.RunNow(context.Background(), JobProgressionReconcile, func(context.Context) (any, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got := runs.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 finished runs, got %d", len(got))
	}
	if got[0].jobType != JobHourAccrual || got[0].status != StatusCompleted || got[0].details["recordsAccrued"] != float64(4) {
		t.Fatalf("unexpected first run %+v", got[0])
	}
	if got[1].jobType != JobProgressionReconcile || got[1].status != StatusFailed || got[1].details["error"] != "boom" {
		t.Fatalf("unexpected second run %+v", got[1])
	}
}

func TestRunNowWithoutRunLogRow(t *testing.T) {
	runs := newFakeRunLog()
	runs.startErr = errors.New("db down")
	svc := New(runs, nil, config.Config{})

	ran := false
	if _, err := svc.RunNow(context.Background(), JobHourAccrual, func(context.Context) (any, error) {
		ran = true
		return nil, nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("job should run even when its run row cannot be written")
	}
	if len(runs.snapshot()) != 0 {
		t.Fatal("no run row should be finished")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	svc := New(newFakeRunLog(), nil, config.Config{})
	noop := func(context.Context) (any, error) { return nil, nil }
	for i := 0; i < queueSize; i++ {
		if !svc.Enqueue(JobHourAccrual, noop) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	if svc.Enqueue(JobHourAccrual, noop) {
		t.Fatal("expected full queue to reject")
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	runs := newFakeRunLog()
	svc := New(runs, nil, config.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	done := make(chan struct{})
	svc.Enqueue(JobHourAccrual, func(context.Context) (any, error) {
		close(done)
		return map[string]any{}, nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued job did not run")
	}
}
