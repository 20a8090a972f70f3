// Package reqresp implements spec.md §4.6: a FIFO of request buffers
// layered on tcpclient.TCPClient, where each buffer serves first as
// the outbound write and then, once written, as the inbound read for
// its correlated response.
package reqresp

import (
	"github.com/stardog-union/rocksnmp/internal/readerwriter"
	"github.com/stardog-union/rocksnmp/internal/statemachine"
	"github.com/stardog-union/rocksnmp/internal/tcpclient"
)

// Edge is this layer's edge space, base 400.
const layerBase = 400

// EdgeRequestDone is sent on a request buffer's own StateMachine, not
// on the Queue's, once the buffer's correlated response has been read
// in full. A caller that wants to know when its request has been
// answered registers itself with buf.StateMachine().AddCompletion
// before calling Enqueue.
const EdgeRequestDone statemachine.Edge = layerBase

// Queue is the spec.md §4.6 "Request/Response" layer. Queue embeds
// *tcpclient.TCPClient (a pointer, not a value) so Queue's own address
// is stable before the TCPClient underneath it exists, avoiding the
// self-pointer-during-construction problem spec.md §9 calls out: New
// allocates Queue first, then hands the already-stable *Queue to
// tcpclient.New as the edge owner.
type Queue struct {
	*tcpclient.TCPClient
	sm *statemachine.StateMachine

	input         []readerwriter.Buffer
	current       readerwriter.Buffer
	notifications []readerwriter.Buffer
	draining      bool
}

// New constructs a Queue whose edges bubble to owner (spec.md §9's
// capability stack: every layer delegates unhandled edges to the one
// above it). owner also drives traffic that bypasses the FIFO
// entirely — a continuous post-handshake inbound reader, for
// instance — by reaching the embedded TCPClient's Read/Write directly
// through promotion.
func New(owner statemachine.Watcher) *Queue {
	q := &Queue{}
	q.TCPClient = tcpclient.New(q)
	q.TCPClient.SetAutoRead(true)
	q.sm = statemachine.New(owner)
	return q
}

func (q *Queue) StateMachine() *statemachine.StateMachine { return q.sm }

// Enqueue appends buf to the input FIFO. If nothing is in flight and
// the connection is established, buf (or whatever is at the front of
// the FIFO) is started immediately; otherwise it waits, and a connect
// is triggered if the socket is not even attempting one (spec.md
// §4.6 "enqueue").
func (q *Queue) Enqueue(buf readerwriter.Buffer) {
	q.input = append(q.input, buf)
	switch q.TCPClient.StateMachine().CurrentNode() {
	case tcpclient.StateEstablished:
		q.startNext()
	case tcpclient.StateClosed:
		q.TCPClient.Connect(q.TCPClient.IP(), q.TCPClient.Port())
	}
}

func (q *Queue) startNext() {
	if q.current != nil || len(q.input) == 0 {
		return
	}
	if q.TCPClient.StateMachine().CurrentNode() != tcpclient.StateEstablished {
		return
	}
	buf := q.input[0]
	q.input = q.input[1:]
	q.current = buf
	q.TCPClient.Write(buf)
}

// OnEdge implements statemachine.Watcher, receiving every edge
// bubbled up from the embedded TCPClient. Every edge is handled
// internally where this layer recognizes it, then bubbled to this
// Queue's own owner regardless, since traffic that bypasses the FIFO
// (a continuous inbound reader installed directly on the underlying
// ReaderWriter) still needs to observe WRITE_DONE/READ_DONE.
func (q *Queue) OnEdge(edge statemachine.Edge, source *statemachine.StateMachine, pre bool) bool {
	switch edge {
	case tcpclient.EdgeConnected:
		q.startNext()
	case readerwriter.EdgeWriteDone:
		// The same buffer that was just written becomes the read
		// target for its correlated response (spec.md §4.6).
		if q.current != nil {
			q.TCPClient.Read(q.current)
		}
	case readerwriter.EdgeReadDone:
		q.onReadDone()
	case tcpclient.EdgeCloseRequest:
		q.onClose()
	}
	q.sm.SendEdge(edge, true)
	return true
}

func (q *Queue) onReadDone() {
	buf := q.current
	q.current = nil
	if buf != nil {
		q.notifications = append(q.notifications, buf)
	}
	q.drainNotifications()
}

// drainNotifications is guarded by a re-entrance flag (spec.md §4.6):
// if a notified watcher synchronously enqueues another request whose
// processing loops back into drainNotifications, the nested call
// returns immediately and the outer loop's condition check picks up
// whatever the nested call queued.
func (q *Queue) drainNotifications() {
	if q.draining {
		return
	}
	q.draining = true
	defer func() { q.draining = false }()

	for len(q.notifications) > 0 {
		q.startNext()
		buf := q.notifications[0]
		q.notifications = q.notifications[1:]
		buf.StateMachine().SendEdge(EdgeRequestDone, true)
	}
	q.startNext()
}

func (q *Queue) onClose() {
	q.input = nil
	q.current = nil
	q.notifications = nil
}
