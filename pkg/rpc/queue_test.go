// ABOUTME: Tests for the event queue
// ABOUTME: FIFO order, non-blocking push and close semantics
package rpc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventQueueOrder(t *testing.T) {
	q := newEventQueue()
	for i := 0; i < 100; i++ {
		assert.True(t, q.push(event{name: Event(fmt.Sprint(i))}))
	}

	var got []Event
	go q.run(func(e event) {
		got = append(got, e.name)
		if len(got) == 100 {
			q.close()
		}
	})
	<-q.done

	for i, name := range got {
		assert.Equal(t, Event(fmt.Sprint(i)), name)
	}
	assert.Len(t, got, 100)
}

func TestEventQueuePushAfterClose(t *testing.T) {
	q := newEventQueue()
	go q.run(func(event) {})
	q.close()
	<-q.done
	assert.False(t, q.push(event{name: EvtReady}))
}
