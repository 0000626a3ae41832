package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/moire/internal/compositor"
	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator records calls and answers from per-name tables.
type fakeGenerator struct {
	delays  map[string]time.Duration
	fail    map[string]bool
	reused  map[string]bool
	skipped map[string]int

	mu    sync.Mutex
	calls []string
}

func (f *fakeGenerator) Generate(ctx context.Context, name string, specs []layer.Spec, resolution int, force bool) (pipeline.Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return pipeline.Output{}, ctx.Err()
	case <-time.After(f.delays[name]):
	}

	if f.fail[name] {
		return pipeline.Output{}, errors.New("render failed")
	}
	if f.reused[name] && !force {
		return pipeline.Output{Path: name + ".png", Reused: true}, nil
	}

	report := compositor.Report{Applied: len(specs)}
	for i := 0; i < f.skipped[name]; i++ {
		report.Skipped = append(report.Skipped, compositor.Skipped{Index: i + 1})
		report.Applied--
	}
	return pipeline.Output{Path: fmt.Sprintf("%s@%d.png", name, resolution), Report: report}, nil
}

func twistTasks(names ...string) []Task {
	tasks := make([]Task, len(names))
	for i, name := range names {
		tasks[i] = Task{
			Name: name,
			Layers: []layer.Spec{
				{"type": "hex", "const": 20.0},
				{"type": "hex", "const": 20.0, "angle": float64(i)},
			},
			Resolution: 32,
		}
	}
	return tasks
}

func TestPool_ResultsFollowTaskOrder(t *testing.T) {
	// Earlier tasks take longer, so they complete last.
	gen := &fakeGenerator{delays: map[string]time.Duration{
		"twist_0.50": 60 * time.Millisecond,
		"twist_1.00": 30 * time.Millisecond,
		"twist_1.50": 0,
	}}
	pool := New(Config{Workers: 3, Generator: gen})

	tasks := twistTasks("twist_0.50", "twist_1.00", "twist_1.50")
	results, err := pool.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, len(tasks))

	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, tasks[i].Name, r.Task.Name)
		assert.Equal(t, tasks[i].Name+"@32.png", r.Output.Path)
		assert.Equal(t, 2, r.Output.Report.Applied)
	}
}

func TestPool_RejectsDuplicateNames(t *testing.T) {
	gen := &fakeGenerator{}
	pool := New(Config{Workers: 2, Generator: gen})

	_, err := pool.Run(context.Background(), twistTasks("twist_0.00", "twist_0.50", "twist_0.00"))
	require.ErrorIs(t, err, ErrDuplicateName)
	assert.Contains(t, err.Error(), "tasks 1 and 3")
	assert.Empty(t, gen.calls, "nothing may run when names collide")

	_, err = pool.Run(context.Background(), twistTasks("twist_0.00", ""))
	require.Error(t, err)
}

func TestPool_StatsAndProgress(t *testing.T) {
	gen := &fakeGenerator{
		fail:    map[string]bool{"twist_2.00": true},
		reused:  map[string]bool{"twist_1.00": true},
		skipped: map[string]int{"twist_3.00": 1, "twist_4.00": 2},
	}

	var mu sync.Mutex
	var updates []Stats
	pool := New(Config{
		Workers:   2,
		Generator: gen,
		OnProgress: func(s Stats) {
			mu.Lock()
			updates = append(updates, s)
			mu.Unlock()
		},
	})

	results, err := pool.Run(context.Background(), twistTasks("twist_0.00", "twist_1.00", "twist_2.00", "twist_3.00", "twist_4.00"))
	require.NoError(t, err)

	require.Len(t, updates, 5)
	for i, s := range updates {
		assert.Equal(t, i+1, s.Completed)
		assert.Equal(t, 5, s.Total)
	}
	final := updates[len(updates)-1]
	assert.Equal(t, Stats{Total: 5, Completed: 5, Failed: 1, Reused: 1, SkippedLayers: 3}, final)
	assert.Equal(t, 3, final.Rendered())

	assert.True(t, results[1].Output.Reused)
	assert.Error(t, results[2].Err)
	assert.Len(t, results[4].Output.Report.Skipped, 2)
}

func TestPool_ForceBypassesReuse(t *testing.T) {
	gen := &fakeGenerator{reused: map[string]bool{"twist_1.00": true}}
	pool := New(Config{Workers: 1, Generator: gen})

	tasks := twistTasks("twist_1.00")
	tasks[0].Force = true
	results, err := pool.Run(context.Background(), tasks)
	require.NoError(t, err)
	assert.False(t, results[0].Output.Reused)
}

func TestPool_CancellationFillsEveryResult(t *testing.T) {
	names := make([]string, 10)
	delays := make(map[string]time.Duration, len(names))
	for i := range names {
		names[i] = fmt.Sprintf("twist_%d.00", i)
		delays[names[i]] = 100 * time.Millisecond
	}
	gen := &fakeGenerator{delays: delays}

	var last Stats
	pool := New(Config{
		Workers:    2,
		Generator:  gen,
		OnProgress: func(s Stats) { last = s },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results, err := pool.Run(ctx, twistTasks(names...))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.Len(t, results, len(names))
	for i, r := range results {
		assert.Equal(t, names[i], r.Task.Name)
		assert.ErrorIs(t, r.Err, context.Canceled, "task %d", i)
	}
	assert.Equal(t, len(names), last.Completed)
	assert.Equal(t, len(names), last.Failed)

	gen.mu.Lock()
	defer gen.mu.Unlock()
	assert.Less(t, len(gen.calls), len(names), "queued tasks must not start after cancellation")
}

func TestPool_EmptyTasks(t *testing.T) {
	gen := &fakeGenerator{}
	results, err := New(Config{Workers: 2, Generator: gen}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, gen.calls)
}

func TestPool_DefaultsToOneWorker(t *testing.T) {
	pool := New(Config{Workers: 0, Generator: &fakeGenerator{}})
	assert.Equal(t, 1, pool.workers)
}
