package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/vampirenirmal/bookforge/internal/core"
	"github.com/vampirenirmal/bookforge/internal/domain/book"
	"github.com/vampirenirmal/bookforge/internal/metrics"
	"github.com/vampirenirmal/bookforge/internal/storage"
)

func stage(name string, fn func(context.Context, *core.Project) error) core.Stage {
	return core.StageFunc{StageName: name, Fn: fn}
}

func newProject(t *testing.T) *core.Project {
	t.Helper()
	return core.NewProject("book_test", book.Request{Idea: "a red door"}, storage.NewFileSystem(t.TempDir()))
}

func TestOrchestratorBasicFlow(t *testing.T) {
	var order []string
	stages := []core.Stage{
		stage("plan", func(_ context.Context, p *core.Project) error {
			order = append(order, "plan")
			p.Plan = &book.BookPlan{Title: "T"}
			return nil
		}),
		stage("write", func(_ context.Context, p *core.Project) error {
			order = append(order, "write")
			if p.Plan == nil {
				t.Error("plan not visible to later stage")
			}
			p.Contents = []book.ChapterContent{{Index: 0, Fallback: true}}
			return nil
		}),
	}

	p := newProject(t)
	if err := core.New(stages).Run(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "plan" || order[1] != "write" {
		t.Errorf("stages ran as %v", order)
	}
	if len(p.CompletedStages) != 2 {
		t.Errorf("CompletedStages = %v", p.CompletedStages)
	}

	data, err := p.Store.Load(context.Background(), "checkpoints/book_test.json")
	if err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}
	var cp core.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		t.Fatal(err)
	}
	if cp.StageName != "write" || cp.StageIndex != 1 || cp.Fallbacks != 1 {
		t.Errorf("checkpoint = %+v", cp)
	}
}

func TestOrchestratorStageFailure(t *testing.T) {
	boom := errors.New("boom")
	ran := false
	stages := []core.Stage{
		stage("render", func(context.Context, *core.Project) error {
			return core.ErrRenderFailed
		}),
		stage("after", func(context.Context, *core.Project) error {
			ran = true
			return boom
		}),
	}

	err := core.New(stages).Run(context.Background(), newProject(t))
	var stageErr *core.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *StageError, got %T: %v", err, err)
	}
	if stageErr.Stage != "render" {
		t.Errorf("Stage = %q, want render", stageErr.Stage)
	}
	if !core.IsFatal(err) {
		t.Error("render failure should be fatal")
	}
	if ran {
		t.Error("stage after a failure ran")
	}
}

func TestOrchestratorContextCancellation(t *testing.T) {
	stages := []core.Stage{
		stage("slow", func(ctx context.Context, _ *core.Project) error {
			select {
			case <-time.After(5 * time.Second):
				return errors.New("should not reach here")
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := core.New(stages).Run(ctx, newProject(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline exceeded, got %v", err)
	}
}

func TestOrchestratorRunFrom(t *testing.T) {
	var ran []string
	mk := func(name string) core.Stage {
		return stage(name, func(context.Context, *core.Project) error {
			ran = append(ran, name)
			return nil
		})
	}
	o := core.New([]core.Stage{mk("plan"), mk("write"), mk("render")}, core.WithCheckpointing(false))
	if got := o.Stages(); len(got) != 3 || got[2] != "render" {
		t.Errorf("Stages() = %v", got)
	}

	p := newProject(t)
	if err := o.RunFrom(context.Background(), p, 2); err != nil {
		t.Fatal(err)
	}
	if len(ran) != 1 || ran[0] != "render" {
		t.Errorf("ran %v, want [render]", ran)
	}
	if p.Store.Exists(context.Background(), "checkpoints/book_test.json") {
		t.Error("checkpoint written with checkpointing disabled")
	}
}

func TestOrchestratorRecordsMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	stages := []core.Stage{stage("plan", func(context.Context, *core.Project) error { return nil })}

	if err := core.New(stages, core.WithRecorder(rec)).Run(context.Background(), newProject(t)); err != nil {
		t.Fatal(err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "bookforge_stage_results_total" {
			found = true
		}
	}
	if !found {
		t.Error("stage result counter not recorded")
	}
}

func TestUnitTracker(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileSystem(t.TempDir())
	tracker := core.NewUnitTracker(store, "book_test", 3)

	if err := tracker.Record(ctx, 0, "chapter1", 2, nil); err != nil {
		t.Fatal(err)
	}
	if err := tracker.Record(ctx, 1, "chapter2", 1, errors.New("provider down")); err != nil {
		t.Fatal(err)
	}

	stats := tracker.Stats()
	if stats.Completed != 2 || stats.Fallback != 1 || stats.Pending != 1 {
		t.Errorf("Stats() = %+v", stats)
	}

	reloaded := core.NewUnitTracker(store, "book_test", 3)
	if err := reloaded.LoadProgress(ctx); err != nil {
		t.Fatal(err)
	}
	if !reloaded.IsCompleted("chapter2") || reloaded.IsCompleted("chapter3") {
		t.Error("progress not restored from disk")
	}
}
