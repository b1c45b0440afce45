package jobs

import (
	"testing"
	"time"
)

func testDetails() JobDetails {
	return JobDetails{
		ClassName:  "com.example.Reports",
		MethodName: "generate",
		Params:     []Param{{ClassName: "java.lang.String", Value: "q4"}},
	}
}

func TestNewEnqueuedJob_HistoryNonEmpty(t *testing.T) {
	j := NewEnqueuedJob("job-1", testDetails(), time.Now())
	if len(j.History) != 1 {
		t.Fatalf("expected history length 1, got %d", len(j.History))
	}
	if j.State() != Enqueued {
		t.Fatalf("expected ENQUEUED, got %s", j.State())
	}
	if j.Version != 1 {
		t.Fatalf("expected version 1, got %d", j.Version)
	}
}

func TestAppendState_IncrementsVersionAndAppends(t *testing.T) {
	j := NewScheduledJob("job-2", testDetails(), time.Now(), "")
	j.AppendState(NewEnqueuedState(time.Now()))
	if j.Version != 2 {
		t.Fatalf("expected version 2, got %d", j.Version)
	}
	if len(j.History) != 2 {
		t.Fatalf("expected history length 2, got %d", len(j.History))
	}
	if j.Current().Name != Enqueued {
		t.Fatalf("expected current state ENQUEUED, got %s", j.Current().Name)
	}
	if j.History[0].Name != Scheduled {
		t.Fatal("appending must not rewrite earlier history entries")
	}
}

func TestCountState(t *testing.T) {
	j := NewEnqueuedJob("job-3", testDetails(), time.Now())
	j.AppendState(NewProcessingState("server-1", time.Now()))
	j.AppendState(NewFailedState(time.Now(), "java.lang.RuntimeException", "boom", ""))
	j.AppendState(NewScheduledState(time.Now().Add(3*time.Second), ""))
	j.AppendState(NewEnqueuedState(time.Now()))
	j.AppendState(NewProcessingState("server-1", time.Now()))
	j.AppendState(NewFailedState(time.Now(), "java.lang.RuntimeException", "boom again", ""))
	if got := j.CountState(Failed); got != 2 {
		t.Fatalf("expected 2 FAILED states, got %d", got)
	}
}

func TestClone_IsIndependentOfOriginal(t *testing.T) {
	j := NewEnqueuedJob("job-4", testDetails(), time.Now())
	j.Metadata["k"] = "v"
	cp := j.Clone()
	cp.AppendState(NewProcessingState("server-1", time.Now()))
	cp.Metadata["k"] = "changed"

	if j.State() != Enqueued {
		t.Fatal("mutating the clone must not affect the original's history")
	}
	if j.Metadata["k"] != "v" {
		t.Fatal("mutating the clone's metadata must not affect the original's")
	}
}

func TestJobDetails_SignatureStableAndDistinct(t *testing.T) {
	a := testDetails()
	b := testDetails()
	if a.Signature() != b.Signature() {
		t.Fatal("identical JobDetails must produce identical signatures")
	}

	c := testDetails()
	c.Params[0].ClassName = "java.lang.Integer"
	if a.Signature() == c.Signature() {
		t.Fatal("differing param class names must produce differing signatures")
	}
}

func TestStateName_IsTerminal(t *testing.T) {
	terminal := []StateName{Succeeded, Failed, Deleted}
	for _, n := range terminal {
		if !n.IsTerminal() {
			t.Fatalf("%s should be terminal", n)
		}
	}
	nonTerminal := []StateName{Scheduled, Enqueued, Processing}
	for _, n := range nonTerminal {
		if n.IsTerminal() {
			t.Fatalf("%s should not be terminal", n)
		}
	}
}
