package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v5"

	apperrors "novel2video/pkg/errors"
)

func fast(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BackOff: &backoff.ZeroBackOff{}}
}

func TestDo(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		attempts  int
		failFirst int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"first try", 3, 0, boom, 1, false},
		{"recovers on last attempt", 3, 2, boom, 3, false},
		{"exhausts attempts", 3, 5, boom, 3, true},
		{"zero attempts means one", 0, 5, boom, 1, true},
		{"io errors are not retried", 3, 5, apperrors.Wrap(boom, apperrors.CodeIOFailure, "write"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Do(context.Background(), "test", fast(tt.attempts), func(context.Context) (int, error) {
				calls++
				if calls <= tt.failFirst {
					return 0, tt.err
				}
				return 42, nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !tt.wantErr && got != 42 {
				t.Errorf("got %d", got)
			}
			if tt.wantErr && !errors.Is(err, boom) {
				t.Errorf("err = %v, want to wrap the last failure", err)
			}
			if tt.wantErr {
				exhausted := apperrors.HasCode(err, apperrors.CodeStageFailed)
				if io := apperrors.HasCode(tt.err, apperrors.CodeIOFailure); exhausted == io {
					t.Errorf("stage failed = %v for io error = %v", exhausted, io)
				}
			}
		})
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Run(ctx, "test", fast(5), func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 after cancel", calls)
	}
}
