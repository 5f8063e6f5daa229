package errors

import (
	"fmt"
	"testing"
)

func TestWrapErrorKeepsSentinel(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		check  func(error) bool
		expect bool
	}{
		{"malformed", WrapError(ErrMalformedOutput, "parse orchestrator output"), IsMalformedOutput, true},
		{"invalid_input_formatted", WrapErrorf(ErrInvalidInput, "row %d", 3), IsInvalidInput, true},
		{"not_found_double_wrap", WrapError(WrapError(ErrNotFound, "inner"), "outer"), IsNotFound, true},
		{"unrelated", fmt.Errorf("boom"), IsServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.err); got != tt.expect {
				t.Errorf("check(%v) = %v, want %v", tt.err, got, tt.expect)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if WrapError(nil, "ctx") != nil {
		t.Error("WrapError(nil) should be nil")
	}
	if WrapErrorf(nil, "ctx %d", 1) != nil {
		t.Error("WrapErrorf(nil) should be nil")
	}
}

func TestWrapMessage(t *testing.T) {
	err := WrapErrorf(ErrNoData, "session %s", "abc")
	if got, want := err.Error(), "session abc: no data loaded"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
