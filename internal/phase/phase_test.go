package phase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vampirenirmal/bookforge/internal/core"
)

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Here is the plan: {"a":{"b":"}"}} Hope it helps.`, `{"a":{"b":"}"}}`},
		{"trailing comma", `Sure! {"a":[1,2,],}`, `{"a":[1,2]}`},
		{"bare keys", `result {title: "x"}`, `{"title": "x"}`},
		{"hopeless", `no json here`, `no json here`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSONResponse(tt.in); got != tt.want {
				t.Errorf("CleanJSONResponse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ Title string }
	if err := DecodeJSON("```json\n{\"Title\": \"Kite\"}\n```", &v); err != nil || v.Title != "Kite" {
		t.Errorf("DecodeJSON() = %+v, %v", v, err)
	}
	if err := DecodeJSON("nothing", &v); !errors.Is(err, core.ErrMalformedResponse) {
		t.Errorf("DecodeJSON() error = %v, want ErrMalformedResponse", err)
	}
}

func fastRetry(attempts int) BaseStageOption {
	return WithRetryConfig(RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2})
}

func TestBaseStageRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("transient errors are retried", func(t *testing.T) {
		var calls int
		err := NewBaseStage("test", fastRetry(3)).Retry(ctx, "op", func(context.Context) error {
			calls++
			if calls < 3 {
				return fmt.Errorf("upstream: %w", core.ErrServerError)
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("Retry() = %v after %d calls", err, calls)
		}
	})

	t.Run("terminal errors are not retried", func(t *testing.T) {
		var calls int
		err := NewBaseStage("test", fastRetry(3)).Retry(ctx, "op", func(context.Context) error {
			calls++
			return core.ErrNoAPIKey
		})
		if !errors.Is(err, core.ErrNoAPIKey) || calls != 1 {
			t.Errorf("Retry() = %v after %d calls", err, calls)
		}
	})

	t.Run("exhaustion is reported", func(t *testing.T) {
		var calls int
		err := NewBaseStage("test", fastRetry(2)).Retry(ctx, "op", func(context.Context) error {
			calls++
			return core.ErrRateLimited
		})
		var retryable *core.RetryableError
		if !errors.As(err, &retryable) || !errors.Is(err, core.ErrRateLimited) || calls != 2 {
			t.Errorf("Retry() = %v after %d calls", err, calls)
		}
	})

	t.Run("cancellation stops the wait", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		stage := NewBaseStage("test", WithRetryConfig(RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, BackoffFactor: 1}))
		err := stage.Retry(cctx, "op", func(context.Context) error {
			cancel()
			return core.ErrTimeout
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Retry() = %v, want context.Canceled", err)
		}
	})
}

func TestWorkerPoolKeepsOrder(t *testing.T) {
	pool := NewWorkerPool[int, int](WithWorkers(3), WithTimeout(time.Second))
	items := []int{5, 1, 4, 2, 3}

	var inFlight, peak atomic.Int32
	outcomes, err := pool.Process(context.Background(), items, func(ctx context.Context, _ int, n int) (int, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(time.Duration(n) * time.Millisecond)
		if n == 4 {
			return 0, errors.New("four is unlucky")
		}
		return n * n, nil
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	for i, o := range outcomes {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
		if items[i] == 4 {
			if o.Err == nil {
				t.Error("item 4 should carry its error")
			}
			continue
		}
		if o.Err != nil || o.Value != items[i]*items[i] {
			t.Errorf("outcome %d = %+v", i, o)
		}
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency %d exceeds 3 workers", peak.Load())
	}
}

func TestWorkerPoolTimeoutAndCancel(t *testing.T) {
	pool := NewWorkerPool[string, string](WithTimeout(10 * time.Millisecond))
	outcomes, err := pool.Process(context.Background(), []string{"slow"}, func(ctx context.Context, _ int, s string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if err != nil || !errors.Is(outcomes[0].Err, context.DeadlineExceeded) {
		t.Errorf("Process() = %+v, %v", outcomes, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Process(ctx, []string{"a", "b"}, func(context.Context, int, string) (string, error) {
		return "x", nil
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("Process() on cancelled context error = %v", err)
	}
}
