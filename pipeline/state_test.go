package pipeline

import "testing"

func TestStateTransitions(t *testing.T) {
	legal := [][2]State{
		{StatePending, StateExtracted},
		{StateExtracted, StateValidated},
		{StateExtracted, StateSkippedValidation},
		{StateValidated, StateMerged},
		{StateSkippedValidation, StateMerged},
		{StateMerged, StatePersisted},
		{StatePending, StateAborted},
		{StateExtracted, StateAborted},
		{StateMerged, StateAborted},
	}
	for _, e := range legal {
		if !e[0].CanTransition(e[1]) {
			t.Errorf("%s -> %s should be legal", e[0], e[1])
		}
	}

	illegal := [][2]State{
		{StatePending, StateMerged},
		{StateValidated, StateSkippedValidation},
		{StateExtracted, StatePersisted},
		{StatePersisted, StateAborted},
		{StateAborted, StatePending},
		{StateMerged, StateValidated},
	}
	for _, e := range illegal {
		if e[0].CanTransition(e[1]) {
			t.Errorf("%s -> %s should be illegal", e[0], e[1])
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{" Normal ", ModeNormal, false},
		{"STRICT", ModeStrict, false},
		{"simple", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}
