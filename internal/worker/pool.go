// Package worker renders batches of named patterns in parallel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/moire/internal/layer"
	"github.com/MeKo-Tech/moire/internal/pipeline"
)

// ErrDuplicateName is returned by Run when two tasks would write to the same
// output name.
var ErrDuplicateName = errors.New("worker: duplicate task name")

// Generator renders and stores one named pattern.
// pipeline.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, name string, specs []layer.Spec, resolution int, force bool) (pipeline.Output, error)
}

// Task is one pattern to produce.
type Task struct {
	Name       string // Output stem or archive key, unique within a batch
	Layers     []layer.Spec
	Resolution int
	Force      bool
}

// Result is the outcome of one task. Results are returned in task order.
type Result struct {
	Task    Task
	Output  pipeline.Output
	Err     error
	Elapsed time.Duration
}

// Stats aggregates a batch while it runs.
type Stats struct {
	Total     int
	Completed int // finished tasks, failed ones included
	Failed    int
	Reused    int // existing output kept without rendering
	// SkippedLayers counts invalid layers dropped across all rendered patterns.
	SkippedLayers int
}

// Rendered is the number of patterns that were actually rendered.
func (s Stats) Rendered() int {
	return s.Completed - s.Failed - s.Reused
}

func (s *Stats) add(r Result) {
	s.Completed++
	switch {
	case r.Err != nil:
		s.Failed++
	case r.Output.Reused:
		s.Reused++
	default:
		s.SkippedLayers += len(r.Output.Report.Skipped)
	}
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(Stats)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Generator  Generator
	OnProgress ProgressFunc
}

// Pool runs tasks on a fixed number of workers.
type Pool struct {
	workers    int
	generator  Generator
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		generator:  cfg.Generator,
		onProgress: cfg.OnProgress,
	}
}

// CheckNames rejects empty or repeated task names.
func CheckNames(tasks []Task) error {
	seen := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t.Name == "" {
			return fmt.Errorf("task %d has an empty name", i+1)
		}
		if j, ok := seen[t.Name]; ok {
			return fmt.Errorf("%w: %q used by tasks %d and %d", ErrDuplicateName, t.Name, j+1, i+1)
		}
		seen[t.Name] = i
	}
	return nil
}

type job struct {
	index int
	task  Task
}

type indexedResult struct {
	index int
	Result
}

// Run executes all tasks and returns one result per task, in task order. It
// blocks until every task has finished or the context is cancelled; tasks
// never started because of cancellation carry the context error.
func (p *Pool) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if err := CheckNames(tasks); err != nil {
		return nil, err
	}

	jobs := make(chan job)
	resultCh := make(chan indexedResult, p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, jobs, resultCh)
		}()
	}

	go func() {
		defer close(jobs)
		for i, task := range tasks {
			select {
			case jobs <- job{index: i, task: task}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, len(tasks))
	finished := make([]bool, len(tasks))
	stats := Stats{Total: len(tasks)}
	for r := range resultCh {
		results[r.index] = r.Result
		finished[r.index] = true
		stats.add(r.Result)
		if p.onProgress != nil {
			p.onProgress(stats)
		}
	}

	var unstarted int
	for i, done := range finished {
		if done {
			continue
		}
		results[i] = Result{Task: tasks[i], Err: ctx.Err()}
		stats.add(results[i])
		unstarted++
	}
	if unstarted > 0 && p.onProgress != nil {
		p.onProgress(stats)
	}

	return results, nil
}

func (p *Pool) worker(ctx context.Context, jobs <-chan job, results chan<- indexedResult) {
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			results <- indexedResult{index: j.index, Result: Result{Task: j.task, Err: err}}
			continue
		}

		start := time.Now()
		out, err := p.generator.Generate(ctx, j.task.Name, j.task.Layers, j.task.Resolution, j.task.Force)
		results <- indexedResult{index: j.index, Result: Result{
			Task:    j.task,
			Output:  out,
			Err:     err,
			Elapsed: time.Since(start),
		}}
	}
}
