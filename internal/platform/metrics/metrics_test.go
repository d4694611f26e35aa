package metrics

import (
	"testing"
	"time"
)

func TestRecordRequests(t *testing.T) {
	c := New()
	c.Record(200, 10*time.Millisecond)
	c.Record(503, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap["requestsTotal"] != uint64(2) || snap["errorsTotal"] != uint64(1) {
		t.Fatalf("unexpected counters %v", snap)
	}
	if snap["avgDurationMs"] != float64(20) {
		t.Fatalf("expected 20ms average, got %v", snap["avgDurationMs"])
	}
}

func TestRecordExportRun(t *testing.T) {
	c := New()
	c.RecordExportRun("generic", "completed", 12, time.Second)
	c.RecordExportRun("generic", "failed", 3, time.Second)
	c.RecordExportRun("fixedwidth", "completed", 5, 0)

	exports := c.Snapshot()["exportRuns"].(map[string]exportStats)
	generic := exports["generic"]
	if generic.Completed != 1 || generic.Failed != 1 || generic.Lines != 15 || generic.DurationMs != 2000 {
		t.Fatalf("unexpected generic stats %+v", generic)
	}
	if exports["fixedwidth"].Completed != 1 {
		t.Fatalf("unexpected fixedwidth stats %+v", exports["fixedwidth"])
	}
}
