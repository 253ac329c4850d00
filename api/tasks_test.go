/*
tasks_test.go - Background task runner tests

PURPOSE:
  Verifies task lifecycle tracking, error aggregation, panic containment
  and queue backpressure without any HTTP involved.
*/
package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForTask(t *testing.T, tr *TaskRunner, id string) *Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task := tr.Get(id)
		require.NotNil(t, task)
		if task.Status == TaskSuccess || task.Status == TaskFailure {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task did not finish in time")
	return nil
}

func TestSubmit_RunsToSuccess(t *testing.T) {
	tr := NewTaskRunner(2)
	tr.Start()
	defer tr.Stop()

	var ran sync.WaitGroup
	ran.Add(1)
	task, err := tr.Submit("noop", func() []string {
		ran.Done()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "task-000001", task.ID)
	assert.Equal(t, "noop", task.Kind)

	ran.Wait()
	done := waitForTask(t, tr, task.ID)
	assert.Equal(t, TaskSuccess, done.Status)
	assert.Empty(t, done.Errors)
}

func TestSubmit_CollectsErrorLines(t *testing.T) {
	tr := NewTaskRunner(1)
	tr.Start()
	defer tr.Stop()

	task, err := tr.Submit("bulk_approve", func() []string {
		return []string{"C-000001: Failed to approve Contract: bad state"}
	})
	require.NoError(t, err)

	done := waitForTask(t, tr, task.ID)
	assert.Equal(t, TaskFailure, done.Status)
	require.Len(t, done.Errors, 1)
	assert.Contains(t, done.Errors[0], "C-000001")
}

func TestSubmit_PanicBecomesFailure(t *testing.T) {
	tr := NewTaskRunner(1)
	tr.Start()
	defer tr.Stop()

	task, err := tr.Submit("explode", func() []string {
		panic("boom")
	})
	require.NoError(t, err)

	// the worker survives the panic
	done := waitForTask(t, tr, task.ID)
	assert.Equal(t, TaskFailure, done.Status)
	require.Len(t, done.Errors, 1)
	assert.Equal(t, "panic: boom", done.Errors[0])

	// and keeps taking work afterwards
	next, err := tr.Submit("noop", func() []string { return nil })
	require.NoError(t, err)
	assert.Equal(t, TaskSuccess, waitForTask(t, tr, next.ID).Status)
}

func TestSubmit_QueueFull(t *testing.T) {
	tr := NewTaskRunner(1)
	// workers never started, so the buffered channel is the only capacity

	var err error
	for i := 0; i < cap(tr.jobs); i++ {
		_, err = tr.Submit("filler", func() []string { return nil })
		require.NoError(t, err)
	}

	_, err = tr.Submit("overflow", func() []string { return nil })
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestGet_UnknownTask(t *testing.T) {
	tr := NewTaskRunner(1)
	assert.Nil(t, tr.Get("task-999999"))
}

func TestGet_ReturnsCopies(t *testing.T) {
	tr := NewTaskRunner(1)

	task, err := tr.Submit("noop", func() []string { return nil })
	require.NoError(t, err)

	task.Status = TaskFailure
	task.Errors = append(task.Errors, "mutated")

	fresh := tr.Get(task.ID)
	assert.Equal(t, TaskPending, fresh.Status)
	assert.Empty(t, fresh.Errors)
}

func TestStop_DrainsRunningWork(t *testing.T) {
	tr := NewTaskRunner(2)
	tr.Start()

	release := make(chan struct{})
	task, err := tr.Submit("slow", func() []string {
		<-release
		return nil
	})
	require.NoError(t, err)

	close(release)
	tr.Stop()

	assert.Equal(t, TaskSuccess, tr.Get(task.ID).Status)
}
