package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlightGroupSharesInFlightCall(t *testing.T) {
	group := newFlightGroup()
	sentinel := errors.New("first caller's result")

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err, shared := group.Do("discover", func() error {
			calls.Add(1)
			close(entered)
			<-release
			return sentinel
		})
		assert.False(t, shared)
		assert.ErrorIs(t, err, sentinel)
	}()

	<-entered

	// Second caller arrives while the first is still in flight.
	done := make(chan struct{})
	go func() {
		defer close(done)
		err, shared := group.Do("discover", func() error {
			calls.Add(1)
			return nil
		})
		assert.True(t, shared, "second caller must join the existing flight")
		assert.ErrorIs(t, err, sentinel, "joined caller receives the shared result")
	}()

	close(release)
	<-done
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "the guarded function runs once")
}

func TestFlightGroupReleasesAfterSettling(t *testing.T) {
	group := newFlightGroup()

	err, shared := group.Do("execute", func() error { return errors.New("boom") })
	require.Error(t, err)
	assert.False(t, shared)

	err, shared = group.Do("execute", func() error { return nil })
	require.NoError(t, err)
	assert.False(t, shared, "a settled flight must not be joined")
}

func TestFlightGroupKeysAreIndependent(t *testing.T) {
	group := newFlightGroup()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = group.Do("discover", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	defer close(release)

	err, shared := group.Do("execute", func() error { return nil })
	require.NoError(t, err)
	assert.False(t, shared, "a different key runs its own flight")
}
