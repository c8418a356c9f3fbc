// ABOUTME: Tests for the fake clock
// ABOUTME: Covers AfterFunc ordering, Stop, and After channels
package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []string

	c.AfterFunc(3*time.Second, func() { order = append(order, "late") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "early") })

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"early"}, order)

	c.Advance(time.Second)
	assert.Equal(t, []string{"early", "late"}, order)
	assert.Equal(t, 0, c.PendingCount())
}

func TestFakeTimerStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second Stop reports already stopped")

	c.Advance(5 * time.Second)
	assert.False(t, fired)
}

func TestFakeAfterFuncZeroDurationRunsInline(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(0, func() { fired = true })

	assert.True(t, fired)
	assert.False(t, timer.Stop())
}

func TestFakeAfterChannel(t *testing.T) {
	c := Fake(epoch)
	ch := c.After(5 * time.Second)

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(5*time.Second), got)
	default:
		t.Fatal("After did not fire")
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Second)
	<-done
}
