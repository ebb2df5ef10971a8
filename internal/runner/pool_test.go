package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/signalnine/tracesift/internal/runner"
)

func TestPool(t *testing.T) {
	var count atomic.Int32
	seen := make([]bool, 10)
	errs := runner.RunPool(context.Background(), 3, len(seen), func(_ context.Context, i int) error {
		count.Add(1)
		seen[i] = true
		return nil
	})
	if len(runner.Failed(errs)) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if count.Load() != 10 {
		t.Errorf("expected 10 jobs, got %d", count.Load())
	}
	for i, ok := range seen {
		if !ok {
			t.Errorf("index %d never ran", i)
		}
	}
}

func TestPoolWithErrors(t *testing.T) {
	errs := runner.RunPool(context.Background(), 2, 3, func(_ context.Context, i int) error {
		if i == 1 {
			return fmt.Errorf("fail")
		}
		return nil
	})
	if len(errs) != 3 {
		t.Fatalf("expected one slot per job, got %d", len(errs))
	}
	if errs[0] != nil || errs[1] == nil || errs[2] != nil {
		t.Errorf("errors not kept by index: %v", errs)
	}
	if len(runner.Failed(errs)) != 1 {
		t.Errorf("expected 1 error, got %d", len(runner.Failed(errs)))
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	errs := runner.RunPool(context.Background(), 4, 5, func(_ context.Context, i int) error {
		if i == 2 {
			panic("boom")
		}
		return nil
	})
	var pe *runner.PanicError
	if !errors.As(errs[2], &pe) {
		t.Fatalf("expected PanicError, got %v", errs[2])
	}
	if pe.Index != 2 || pe.Value != "boom" {
		t.Errorf("unexpected panic error: %+v", pe)
	}
	if len(runner.Failed(errs)) != 1 {
		t.Errorf("other jobs should succeed: %v", errs)
	}
}

func TestPoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	errs := runner.RunPool(ctx, 1, 4, func(context.Context, int) error {
		ran.Add(1)
		return nil
	})
	if ran.Load() != 0 {
		t.Errorf("no job should start after cancel, %d ran", ran.Load())
	}
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("index %d: got %v, want context.Canceled", i, err)
		}
	}
}
