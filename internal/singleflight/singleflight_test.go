package singleflight

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_SingleExecution(t *testing.T) {
	g := New[string, int](Config{})

	var calls int32
	var wg sync.WaitGroup
	results := make([]int, 16)

	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := g.Execute("k", func() (int, error) {
				atomic.AddInt32(&calls, 1)
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls)
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestExecute_Cache(t *testing.T) {
	g := New[string, int](Config{CacheSize: 8})

	var calls int32
	run := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		return 7, nil
	}

	v, err := g.Execute("k", run)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = g.Execute("k", run)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(1), calls)
}

func TestExecute_MaxConcurrentRejectsWithoutQueue(t *testing.T) {
	g := New[string, int](Config{MaxConcurrent: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = g.Execute("a", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	_, err := g.Execute("b", func() (int, error) { return 2, nil })
	assert.ErrorIs(t, err, ErrMaxConcurrent)
	close(release)
}

func TestExecute_QueueAdmitsAfterSlotFrees(t *testing.T) {
	g := New[string, int](Config{MaxConcurrent: 1, MaxQueue: 4})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = g.Execute("a", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	done := make(chan int)
	go func() {
		v, err := g.Execute("b", func() (int, error) { return 9, nil })
		require.NoError(t, err)
		done <- v
	}()

	close(release)
	assert.Equal(t, 9, <-done)
}

func TestExecute_QueueFullRejects(t *testing.T) {
	g := New[string, int](Config{MaxConcurrent: 1, MaxQueue: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = g.Execute("a", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	queued := make(chan struct{})
	go func() {
		_, _ = g.Execute("b", func() (int, error) { return 2, nil })
		close(queued)
	}()
	require.Eventually(t, func() bool { return g.QueueLen("b") == 1 }, time.Second, time.Millisecond)

	_, err := g.Execute("b", func() (int, error) { return 3, nil })
	assert.ErrorIs(t, err, ErrMaxQueue)
	close(release)
	<-queued
}
