package tpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsOutOfRangeThreadCount(t *testing.T) {
	_, err := New(0, 0)
	require.Error(t, err)

	_, err = New(MaxThreads+1, 0)
	require.Error(t, err)
}

func TestPushRejectsTasksBeyondConfiguredMaxTasks(t *testing.T) {
	pool, err := New(1, 1)
	require.NoError(t, err)

	release := make(chan struct{})
	running, err := NewTask(func(arg any) any {
		<-release
		return nil
	}, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Push(running))

	require.Eventually(t, func() bool {
		return running.IsRunning()
	}, time.Second, time.Millisecond)

	queued, err := NewTask(func(arg any) any { return nil }, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Push(queued))

	rejected, err := NewTask(func(arg any) any { return nil }, nil)
	require.NoError(t, err)

	err = pool.Push(rejected)
	require.Error(t, err)
	require.Equal(t, ErrTooManyTasks, err.(*Error).Code)

	close(release)
	_, err = running.Join()
	require.NoError(t, err)
	_, err = queued.Join()
	require.NoError(t, err)
	require.NoError(t, pool.Close())
}

func TestPushRunsTaskAndJoinReturnsResult(t *testing.T) {
	pool, err := New(2, 0)
	require.NoError(t, err)

	task, err := NewTask(func(arg any) any {
		return arg.(int) * 2
	}, 21)
	require.NoError(t, err)

	require.NoError(t, pool.Push(task))

	result, err := task.Join()
	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.True(t, task.IsFinished())

	require.NoError(t, pool.Close())
}

func TestJoinBeforePushFails(t *testing.T) {
	task, err := NewTask(func(arg any) any { return nil }, nil)
	require.NoError(t, err)

	_, err = task.Join()
	require.Error(t, err)
	require.Equal(t, ErrTaskNotPushed, err.(*Error).Code)
}

func TestPoolSpawnsWorkersLazilyUpToCap(t *testing.T) {
	pool, err := New(3, 0)
	require.NoError(t, err)

	release := make(chan struct{})
	var running int32

	makeBlockingTask := func() *Task {
		task, terr := NewTask(func(arg any) any {
			atomic.AddInt32(&running, 1)
			<-release
			return nil
		}, nil)
		require.NoError(t, terr)
		return task
	}

	tasks := []*Task{makeBlockingTask(), makeBlockingTask(), makeBlockingTask(), makeBlockingTask()}
	for _, task := range tasks {
		require.NoError(t, pool.Push(task))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&running) == 3
	}, time.Second, time.Millisecond)

	require.Equal(t, 3, pool.ThreadCount(), "pool must never spawn more than max_threads workers")

	close(release)
	for _, task := range tasks {
		_, err := task.Join()
		require.NoError(t, err)
	}
	require.NoError(t, pool.Close())
}

func TestCloseRefusesWhileTasksOutstanding(t *testing.T) {
	pool, err := New(1, 0)
	require.NoError(t, err)

	release := make(chan struct{})
	task, err := NewTask(func(arg any) any {
		<-release
		return nil
	}, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Push(task))

	require.Eventually(t, func() bool {
		return task.IsRunning()
	}, time.Second, time.Millisecond)

	err = pool.Close()
	require.Error(t, err)
	require.Equal(t, ErrHasTasks, err.(*Error).Code)

	close(release)
	_, err = task.Join()
	require.NoError(t, err)
	require.NoError(t, pool.Close())
}

func TestPushRejectsTaskAlreadyQueued(t *testing.T) {
	pool, err := New(1, 0)
	require.NoError(t, err)

	release := make(chan struct{})
	task, err := NewTask(func(arg any) any {
		<-release
		return nil
	}, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Push(task))

	err = pool.Push(task)
	require.Error(t, err)
	require.Equal(t, ErrTaskInPool, err.(*Error).Code)

	close(release)
	_, err = task.Join()
	require.NoError(t, err)
	require.NoError(t, pool.Close())
}

func TestTaskCanBeReusedAfterCompletion(t *testing.T) {
	pool, err := New(1, 0)
	require.NoError(t, err)

	var calls int32
	task, err := NewTask(func(arg any) any {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, pool.Push(task))
	_, err = task.Join()
	require.NoError(t, err)

	require.NoError(t, pool.Push(task))
	_, err = task.Join()
	require.NoError(t, err)

	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.NoError(t, pool.Close())
}

func TestWaitBlocksUntilAllTasksComplete(t *testing.T) {
	pool, err := New(4, 0)
	require.NoError(t, err)

	var completed int32
	for i := 0; i < 8; i++ {
		task, terr := NewTask(func(arg any) any {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&completed, 1)
			return nil
		}, nil)
		require.NoError(t, terr)
		require.NoError(t, pool.Push(task))
	}

	pool.Wait()
	require.EqualValues(t, 8, atomic.LoadInt32(&completed))
	require.NoError(t, pool.Close())
}

func TestDeleteRefusesQueuedOrRunningTask(t *testing.T) {
	pool, err := New(1, 0)
	require.NoError(t, err)

	release := make(chan struct{})
	task, err := NewTask(func(arg any) any {
		<-release
		return nil
	}, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Push(task))

	err = task.Delete()
	require.Error(t, err)
	require.Equal(t, ErrTaskInPool, err.(*Error).Code)

	close(release)
	_, err = task.Join()
	require.NoError(t, err)
	require.NoError(t, task.Delete())
	require.NoError(t, pool.Close())
}

func TestTimedJoinAndDetachAreNotImplemented(t *testing.T) {
	task, err := NewTask(func(arg any) any { return nil }, nil)
	require.NoError(t, err)

	_, err = task.TimedJoin(1.0)
	require.Error(t, err)
	require.Equal(t, ErrNotImplemented, err.(*Error).Code)

	err = task.Detach()
	require.Error(t, err)
	require.Equal(t, ErrNotImplemented, err.(*Error).Code)
}
