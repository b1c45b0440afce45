package pgstore

import (
	"testing"

	"github.com/daniiell3/jobrunr/jobs"
	"github.com/daniiell3/jobrunr/storage"
)

func TestStateNames_EmptyFilterIsNil(t *testing.T) {
	if got := stateNames(nil); got != nil {
		t.Fatalf("expected nil for an empty filter, got %v", got)
	}
}

func TestStateNames_MapsEachState(t *testing.T) {
	got := stateNames(storage.StateFilter{jobs.Enqueued, jobs.Processing})
	want := []string{"ENQUEUED", "PROCESSING"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestContainsState_EmptyFilterMatchesEverything(t *testing.T) {
	if !containsState(nil, jobs.Succeeded) {
		t.Fatal("an empty filter should match any state")
	}
}

func TestContainsState_NonEmptyFilter(t *testing.T) {
	f := storage.StateFilter{jobs.Succeeded, jobs.Failed}
	if !containsState(f, jobs.Succeeded) {
		t.Fatal("expected SUCCEEDED to match")
	}
	if containsState(f, jobs.Scheduled) {
		t.Fatal("expected SCHEDULED not to match")
	}
}
