package service

import "testing"

func TestStateValid(t *testing.T) {
	for _, st := range []State{StateStopped, StateStarting, StateRunning, StateStopping, StateError, StateUnhealthy} {
		if !st.Valid() {
			t.Errorf("expected %q to be valid", st)
		}
	}
	if State("bogus").Valid() {
		t.Errorf("expected bogus state to be invalid")
	}
}

func TestStateHasProcess(t *testing.T) {
	withProcess := map[State]bool{
		StateStopped:   false,
		StateStarting:  true,
		StateRunning:   true,
		StateStopping:  true,
		StateError:     false,
		StateUnhealthy: true,
	}
	for st, want := range withProcess {
		if got := st.HasProcess(); got != want {
			t.Errorf("%q: HasProcess=%v, want %v", st, got, want)
		}
	}
}
