package domain

import "testing"

func TestJobState_Terminal(t *testing.T) {
	tests := map[JobState]bool{
		JobQueued:    false,
		JobRunning:   false,
		JobCompleted: true,
		JobFailed:    true,
		JobCanceled:  true,
	}
	for state, want := range tests {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestJobRecord_CanTransitionTo(t *testing.T) {
	j := &JobRecord{State: JobRunning}
	if !j.CanTransitionTo(JobCompleted) {
		t.Error("running job should accept a transition")
	}

	j.State = JobFailed
	if j.CanTransitionTo(JobCompleted) {
		t.Error("terminal job must reject further transitions")
	}
}
