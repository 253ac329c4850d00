/*
tasks.go - Background task runner for bulk contract operations

PURPOSE:
  Runs long contract operations (bulk approve, bulk counter, contract
  creation over a large roster) off the request path. The HTTP handler
  enqueues a task, returns its id immediately, and the client polls
  /api/tasks/{id} for the outcome.

DESIGN:
  - Fixed worker pool draining a buffered job channel
  - Tasks tracked in memory: pending -> running -> success/failure
  - Per-item errors are aggregated on the task, one line per failed item
  - A full queue rejects new tasks instead of blocking the handler

LIFECYCLE:
  runner := NewTaskRunner(4)
  runner.Start()
  // ... enqueue from handlers
  runner.Stop()   // drains workers, pending tasks stay pending

SEE ALSO:
  - handlers.go: BulkApprove/BulkCounter/CreateContract endpoints
*/
package api

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// TaskStatus is the lifecycle state of a background task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailure TaskStatus = "failure"
)

// ErrQueueFull is returned when the job channel cannot take another task.
var ErrQueueFull = errors.New("task queue is full")

// Task is one unit of background work and its reported outcome.
type Task struct {
	ID        string
	Kind      string
	Status    TaskStatus
	Errors    []string
	CreatedAt time.Time
}

type job struct {
	taskID string
	run    func() []string
}

// TaskRunner is a fixed-size worker pool with task-status tracking.
type TaskRunner struct {
	workers int

	mu    sync.Mutex
	seq   int
	tasks map[string]*Task

	jobs chan job
	wg   sync.WaitGroup
}

// NewTaskRunner creates a runner with the given number of workers.
func NewTaskRunner(workers int) *TaskRunner {
	if workers < 1 {
		workers = 1
	}
	return &TaskRunner{
		workers: workers,
		tasks:   make(map[string]*Task),
		jobs:    make(chan job, 128),
	}
}

// Start launches the worker pool.
func (tr *TaskRunner) Start() {
	for i := 0; i < tr.workers; i++ {
		tr.wg.Add(1)
		go tr.worker()
	}
	log.Printf("[Tasks] Started %d workers", tr.workers)
}

// Stop closes the queue and waits for running tasks to finish.
func (tr *TaskRunner) Stop() {
	close(tr.jobs)
	tr.wg.Wait()
	log.Println("[Tasks] Stopped")
}

// Submit enqueues fn under a new task id. fn returns per-item error lines;
// an empty slice marks the task successful.
func (tr *TaskRunner) Submit(kind string, fn func() []string) (*Task, error) {
	tr.mu.Lock()
	tr.seq++
	t := &Task{
		ID:        fmt.Sprintf("task-%06d", tr.seq),
		Kind:      kind,
		Status:    TaskPending,
		CreatedAt: time.Now(),
	}
	tr.tasks[t.ID] = t
	tr.mu.Unlock()

	select {
	case tr.jobs <- job{taskID: t.ID, run: fn}:
		return tr.snapshot(t.ID), nil
	default:
		tr.mu.Lock()
		delete(tr.tasks, t.ID)
		tr.mu.Unlock()
		return nil, ErrQueueFull
	}
}

// Get returns a copy of the task, or nil when unknown.
func (tr *TaskRunner) Get(id string) *Task {
	return tr.snapshot(id)
}

func (tr *TaskRunner) snapshot(id string) *Task {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	t, ok := tr.tasks[id]
	if !ok {
		return nil
	}
	cp := *t
	cp.Errors = append([]string{}, t.Errors...)
	return &cp
}

func (tr *TaskRunner) setStatus(id string, status TaskStatus, errs []string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if t, ok := tr.tasks[id]; ok {
		t.Status = status
		t.Errors = errs
	}
}

func (tr *TaskRunner) worker() {
	defer tr.wg.Done()

	for j := range tr.jobs {
		tr.setStatus(j.taskID, TaskRunning, nil)

		errs := tr.runSafely(j)
		if len(errs) == 0 {
			tr.setStatus(j.taskID, TaskSuccess, nil)
		} else {
			tr.setStatus(j.taskID, TaskFailure, errs)
			log.Printf("[Tasks] Task %s failed: %d error(s)", j.taskID, len(errs))
		}
	}
}

// runSafely converts a panicking job into a failed task instead of killing
// the worker.
func (tr *TaskRunner) runSafely(j job) (errs []string) {
	defer func() {
		if r := recover(); r != nil {
			errs = append(errs, fmt.Sprintf("panic: %v", r))
		}
	}()
	return j.run()
}
