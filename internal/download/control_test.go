package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlWaitBlocksWhilePaused(t *testing.T) {
	ctrl := NewControl()
	ctrl.Pause()

	released := make(chan bool, 1)
	go func() {
		released <- ctrl.Wait()
	}()

	select {
	case <-released:
		t.Fatal("Wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	ctrl.Resume()

	select {
	case ok := <-released:
		assert.True(t, ok, "Wait should report not-cancelled after resume")
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
}

func TestControlCancelReleasesPausedWait(t *testing.T) {
	ctrl := NewControl()
	ctrl.Pause()

	released := make(chan bool, 1)
	go func() {
		released <- ctrl.Wait()
	}()

	ctrl.Cancel()

	select {
	case ok := <-released:
		assert.False(t, ok, "Wait should report cancelled")
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Cancel")
	}
}

func TestControlCancelIsIdempotent(t *testing.T) {
	ctrl := NewControl()
	ctrl.Cancel()
	ctrl.Cancel() // must not panic on the closed channel
	assert.True(t, ctrl.Cancelled())

	select {
	case <-ctrl.Done():
	default:
		t.Fatal("Done channel not closed after Cancel")
	}
}

func TestControlSleepWaitsFullDuration(t *testing.T) {
	ctrl := NewControl()

	start := time.Now()
	ok := ctrl.Sleep(100 * time.Millisecond)
	elapsed := time.Since(start)

	require.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestControlSleepAbortsOnCancel(t *testing.T) {
	ctrl := NewControl()

	go func() {
		time.Sleep(50 * time.Millisecond)
		ctrl.Cancel()
	}()

	start := time.Now()
	ok := ctrl.Sleep(10 * time.Second)
	elapsed := time.Since(start)

	assert.False(t, ok, "Sleep should report cancelled")
	assert.Less(t, elapsed, 2*time.Second, "Sleep should abort promptly on cancel")
}

func TestControlPausedFlag(t *testing.T) {
	ctrl := NewControl()
	assert.False(t, ctrl.Paused())
	ctrl.Pause()
	assert.True(t, ctrl.Paused())
	ctrl.Resume()
	assert.False(t, ctrl.Paused())
}
