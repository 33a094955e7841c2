package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitForState(t *testing.T, task *Task, want State) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status := task.Status()
		if status.State == want {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", task.ID, want)
	return Status{}
}

func TestLaunchSuccess(t *testing.T) {
	runner := NewRunner(zap.NewNop())

	task := runner.Launch("check_dataset", func(task *Task) (any, error) {
		task.Update(1, 2, "halfway")
		return map[string]int{"problems": 3}, nil
	})
	require.NotEmpty(t, task.ID)

	status := waitForState(t, task, StateSuccess)
	assert.Equal(t, status.Current, status.Total)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, map[string]int{"problems": 3}, status.Result)
}

func TestLaunchFailure(t *testing.T) {
	runner := NewRunner(zap.NewNop())

	task := runner.Launch("check_dataset", func(task *Task) (any, error) {
		return nil, errors.New("dataset 7 not found")
	})

	status := waitForState(t, task, StateFailure)
	assert.Equal(t, "dataset 7 not found", status.Status)
	assert.Nil(t, status.Result)
}

func TestLaunchRecoversFromPanic(t *testing.T) {
	runner := NewRunner(zap.NewNop())

	task := runner.Launch("check_dataset", func(task *Task) (any, error) {
		panic("boom")
	})

	status := waitForState(t, task, StateFailure)
	assert.Contains(t, status.Status, "boom")
}

func TestGet(t *testing.T) {
	runner := NewRunner(zap.NewNop())
	task := runner.Launch("noop", func(task *Task) (any, error) { return nil, nil })

	found, ok := runner.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, task.ID, found.ID)

	_, ok = runner.Get("unknown")
	assert.False(t, ok)
}
