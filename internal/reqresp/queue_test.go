package reqresp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stardog-union/rocksnmp/internal/readerwriter"
	"github.com/stardog-union/rocksnmp/internal/statemachine"
)

type doneWatcher struct {
	fn func()
}

func (w *doneWatcher) OnEdge(edge statemachine.Edge, source *statemachine.StateMachine, pre bool) bool {
	if edge == EdgeRequestDone && w.fn != nil {
		w.fn()
	}
	return true
}

// TestDrainNotificationsReentranceSafe mirrors spec.md §8 scenario 6: a
// watcher notified of its own request's completion synchronously
// enqueues a second notification and re-enters drainNotifications. The
// nested call must be a no-op, and the outer loop must still pick up
// and fire the nested addition before returning.
func TestDrainNotificationsReentranceSafe(t *testing.T) {
	q := New(statemachine.NopWatcher{})

	bufA := readerwriter.NewWriteBytes([]byte("a"))
	bufB := readerwriter.NewWriteBytes([]byte("b"))

	var bFired bool
	bufB.StateMachine().AddCompletion(&doneWatcher{fn: func() { bFired = true }})

	var aFired, nestedWasNoop bool
	bufA.StateMachine().AddCompletion(&doneWatcher{fn: func() {
		aFired = true
		q.notifications = append(q.notifications, bufB)
		before := len(q.notifications)
		q.drainNotifications() // re-entrant: must return immediately
		nestedWasNoop = len(q.notifications) == before
	}})

	q.notifications = append(q.notifications, bufA)

	require.NotPanics(t, func() { q.drainNotifications() })
	require.True(t, aFired)
	require.True(t, nestedWasNoop)
	require.True(t, bFired)
	require.Empty(t, q.notifications)
	require.False(t, q.draining)
}
