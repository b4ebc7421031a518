package serial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
)

type timeoutErr bool

func (e timeoutErr) Error() string { return "timeout-ish" }
func (e timeoutErr) Timeout() bool { return bool(e) }

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"write timeout", ErrWriteTimeout, true},
		{"wrapped write timeout", fmt.Errorf("tick 3: %w", ErrWriteTimeout), true},
		{"os deadline", os.ErrDeadlineExceeded, true},
		{"context deadline", context.DeadlineExceeded, true},
		{"Timeout() true", timeoutErr(true), true},
		{"Timeout() false", timeoutErr(false), false},
		{"port closed", ErrPortClosed, false},
		{"plain error", errors.New("broken pipe"), false},
		{"context canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
