package jobmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockUntilCancel(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStartRejectsDuplicateNames(t *testing.T) {
	m := New(context.Background(), nil)
	defer m.StopAll()

	require.NoError(t, m.Start("worker", blockUntilCancel))
	assert.Error(t, m.Start("worker", blockUntilCancel))
	assert.True(t, m.Has("worker"))
}

func TestStopCancelsAndWaits(t *testing.T) {
	m := New(context.Background(), nil)

	started := make(chan struct{})
	finished := false
	require.NoError(t, m.Start("worker", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		finished = true
		return ctx.Err()
	}))
	<-started

	assert.True(t, m.Stop("worker"))
	assert.True(t, finished, "Stop must wait for the job to return")
	assert.False(t, m.Has("worker"))
	assert.False(t, m.Stop("worker"), "second stop finds nothing")
}

func TestJobsRemoveThemselvesOnCompletion(t *testing.T) {
	m := New(context.Background(), nil)

	done := make(chan struct{})
	require.NoError(t, m.Start("oneshot", func(ctx context.Context) error {
		defer close(done)
		return nil
	}))
	<-done

	// Removal happens just after the run returns.
	deadline := time.Now().Add(time.Second)
	for m.Has("oneshot") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.False(t, m.Has("oneshot"))

	// Name is reusable afterwards.
	require.NoError(t, m.Start("oneshot", blockUntilCancel))
	m.StopAll()
}

func TestParentCancelStopsEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New(ctx, nil)

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		require.NoError(t, m.Start(name, func(ctx context.Context) error {
			defer wg.Done()
			<-ctx.Done()
			return ctx.Err()
		}))
	}

	cancel()
	wg.Wait()
}

func TestOnExitReceivesResult(t *testing.T) {
	results := make(chan error, 1)
	m := New(context.Background(), func(name string, err error) {
		results <- err
	})

	boom := errors.New("boom")
	require.NoError(t, m.Start("failing", func(ctx context.Context) error { return boom }))

	select {
	case err := <-results:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("onExit never fired")
	}
}

func TestRunningListsJobs(t *testing.T) {
	m := New(context.Background(), nil)
	defer m.StopAll()

	require.NoError(t, m.Start("a", blockUntilCancel))
	require.NoError(t, m.Start("b", blockUntilCancel))
	assert.ElementsMatch(t, []string{"a", "b"}, m.Running())
}
