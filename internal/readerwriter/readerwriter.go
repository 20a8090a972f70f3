// Package readerwriter implements spec.md §4.4: buffered scatter/gather
// read and write over a reactor handle, with a pending-write queue.
//
// Grounded on gaio's watcher.go tryRead/tryWrite (EAGAIN handled
// locally, EINTR retried, partial progress accumulated on the aiocb)
// adapted from gaio's per-operation aiocb to the spec's per-handler
// current-buffer-plus-FIFO-queue model.
package readerwriter

import (
	"golang.org/x/sys/unix"

	"github.com/stardog-union/rocksnmp/internal/reactor"
	"github.com/stardog-union/rocksnmp/internal/rlog"
	"github.com/stardog-union/rocksnmp/internal/statemachine"
)

// Edge is this layer's edge space, base 200 (spec.md §9 "edge space
// partitioned per layer").
const layerBase = 200

const (
	EdgeDataReady statemachine.Edge = layerBase + iota
	EdgeWriteDone
	EdgeReadDone
	EdgeWritable
	EdgeError
	EdgeTimeout
	EdgeHangup
)

const (
	StateOpen = iota
	StateClosed
)

// ReaderWriter is the spec.md §3 "Reader/Writer buffer" owner: at most
// one active read buffer, at most one active write buffer, and a FIFO
// of pending writes.
type ReaderWriter struct {
	reactor.Base

	sm *statemachine.StateMachine

	writeCur   Buffer
	writeQueue []Buffer

	readCur  Buffer
	autoRead bool

	closed bool
}

// Init binds the ReaderWriter's StateMachine to owner. Composed types
// must call this during their own construction.
func (rw *ReaderWriter) Init(owner statemachine.Watcher) {
	rw.sm = statemachine.New(owner)
}

func (rw *ReaderWriter) StateMachine() *statemachine.StateMachine { return rw.sm }

// SetAutoRead controls whether the readable callback keeps requesting
// more data until RequiredMinimum is satisfied (spec.md §4.4).
func (rw *ReaderWriter) SetAutoRead(v bool) { rw.autoRead = v }

// Write installs buf as the current write buffer and writes
// synchronously if nothing is in flight and buf is ready; otherwise
// queues it FIFO and watches it for DATA_READY (spec.md §4.4).
func (rw *ReaderWriter) Write(buf Buffer) {
	if rw.writeCur == nil && len(rw.writeQueue) == 0 && buf.IsDataReady() {
		rw.writeCur = buf
		rw.doWritable()
		return
	}
	rw.writeQueue = append(rw.writeQueue, buf)
	buf.StateMachine().AddCompletion(rw)
}

// Read installs buf as the current read buffer and immediately
// invokes the readable path.
func (rw *ReaderWriter) Read(buf Buffer) {
	rw.readCur = buf
	rw.doReadable()
}

// OnEdge implements statemachine.Watcher: the only edge a
// ReaderWriter watches for is a queued buffer's DATA_READY.
func (rw *ReaderWriter) OnEdge(edge statemachine.Edge, source *statemachine.StateMachine, pre bool) bool {
	if edge == EdgeDataReady {
		rw.promoteIfFront(source)
	}
	return true
}

func (rw *ReaderWriter) promoteIfFront(source *statemachine.StateMachine) {
	if len(rw.writeQueue) == 0 || rw.writeCur != nil {
		return
	}
	front := rw.writeQueue[0]
	if front.StateMachine() != source || !front.IsDataReady() {
		return
	}
	rw.writeQueue = rw.writeQueue[1:]
	rw.writeCur = front
	rw.doWritable()
}

// OnWritable implements reactor.Handler.
func (rw *ReaderWriter) OnWritable() bool {
	if rw.writeCur == nil {
		rw.sm.SendEdge(EdgeWritable, true)
		rw.updateWriteInterest()
		return true
	}
	rw.doWritable()
	return true
}

func (rw *ReaderWriter) doWritable() {
	for rw.writeCur != nil {
		slices := rw.writeCur.WriteSlices()
		if len(slices) == 0 {
			rw.finishCurrentWrite()
			continue
		}

		n, err := writevSlices(rw.FD, slices)
		if n > 0 {
			rw.writeCur.MarkWritten(n)
		}
		if err != nil {
			if wouldBlockErr(err) {
				break
			}
			if isEINTRErr(err) {
				continue
			}
			rlog.Error("readerwriter: writev failed", "err", err)
			rw.writeCur = nil
			rw.sm.SendEdge(EdgeError, true)
			rw.close()
			return
		}
		if rw.writeCur != nil && rw.writeCur.BytesWritten() >= rw.writeCur.TargetEnd() {
			rw.finishCurrentWrite()
		}
	}
	rw.updateWriteInterest()
}

func (rw *ReaderWriter) finishCurrentWrite() {
	rw.sm.SendEdge(EdgeWriteDone, true)
	rw.writeCur = nil
	if len(rw.writeQueue) > 0 && rw.writeQueue[0].IsDataReady() {
		rw.writeCur = rw.writeQueue[0]
		rw.writeQueue = rw.writeQueue[1:]
	}
}

func (rw *ReaderWriter) updateWriteInterest() {
	if rw.R == nil {
		return
	}
	want := rw.writeCur != nil
	if err := rw.R.SetInterest(rw.Owner(), rw.WantRead, want); err != nil {
		rlog.Error("readerwriter: set write interest failed", "err", err)
	}
}

// OnReadable implements reactor.Handler.
func (rw *ReaderWriter) OnReadable() bool {
	rw.doReadable()
	return true
}

func (rw *ReaderWriter) doReadable() {
	if rw.readCur == nil {
		return
	}

	cur := rw.readCur
	zeroSeen := false
	for {
		slices := rw.readCur.ReadSlices()
		if len(slices) == 0 {
			break
		}
		n, err := readvSlices(rw.FD, slices)
		if n > 0 {
			rw.readCur.MarkRead(n)
		}
		if n == 0 && err == nil {
			zeroSeen = true
		}
		if err != nil {
			if wouldBlockErr(err) {
				break
			}
			if isEINTRErr(err) {
				continue
			}
			rlog.Error("readerwriter: readv failed", "err", err)
			rw.readCur = nil
			rw.sm.SendEdge(EdgeError, true)
			rw.close()
			return
		}
		if zeroSeen || rw.readCur.BytesRead() >= rw.readCur.RequiredMinimum() {
			break
		}
	}

	satisfied := rw.readCur != nil && rw.readCur.BytesRead() >= rw.readCur.RequiredMinimum()
	if satisfied || zeroSeen {
		rw.sm.SendEdge(EdgeReadDone, true)
		if rw.readCur != cur {
			// a watcher installed a new read buffer during READ_DONE,
			// and that Read already set the interest it needs
			return
		}
	}

	wantRead := rw.autoRead && !satisfied && !zeroSeen
	if rw.R != nil {
		if err := rw.R.SetInterest(rw.Owner(), wantRead, rw.WantWrite); err != nil {
			rlog.Error("readerwriter: set read interest failed", "err", err)
		}
	}
}

// OnError implements reactor.Handler: self-sourced ERROR triggers
// close (spec.md §4.4 "Edge handling").
func (rw *ReaderWriter) OnError() bool {
	rw.sm.SendEdge(EdgeError, true)
	rw.close()
	return false
}

// OnHangup implements reactor.Handler.
func (rw *ReaderWriter) OnHangup(flags uint32) bool {
	rw.sm.SendEdge(EdgeHangup, true)
	return true
}

// OnTimer implements reactor.Handler: self-sourced TIMEOUT triggers
// close. Layers with their own timer semantics (e.g. a dedicated
// reconnect handler) use a separate reactor.Base rather than
// overloading this one.
func (rw *ReaderWriter) OnTimer() bool {
	rw.sm.SendEdge(EdgeTimeout, true)
	rw.close()
	return true
}

// Close tears down the handle, clears pending writes and active
// buffers, and transitions to CLOSED — but does not itself emit a
// CLOSE edge (spec.md §4.4: "self-referential notification at
// destruction is prohibited").
func (rw *ReaderWriter) Close() { rw.close() }

func (rw *ReaderWriter) close() {
	if rw.closed {
		return
	}
	rw.closed = true
	rw.writeQueue = nil
	rw.writeCur = nil
	rw.readCur = nil
	rw.sm.SetState(StateClosed)
	rw.Base.Release()
}

func (rw *ReaderWriter) IsClosed() bool { return rw.closed }

// ResetForReconnect clears queued state so the handler can be reused
// across a fresh connection attempt (spec.md §4.5 "repeated connection
// attempts against the same endpoint are supported and reset all
// buffers").
func (rw *ReaderWriter) ResetForReconnect() {
	rw.writeQueue = nil
	rw.writeCur = nil
	rw.readCur = nil
	rw.closed = false
}

func toIovecs(slices [][]byte) []unix.Iovec {
	iovs := make([]unix.Iovec, 0, len(slices))
	for _, s := range slices {
		if len(s) == 0 {
			continue
		}
		var iov unix.Iovec
		iov.Base = &s[0]
		iov.SetLen(len(s))
		iovs = append(iovs, iov)
	}
	return iovs
}

// writevSlices performs a single scatter/gather write, per spec.md
// §4.4's "writev the buffer's current slices".
func writevSlices(fd int, slices [][]byte) (int, error) {
	iovs := toIovecs(slices)
	if len(iovs) == 0 {
		return 0, nil
	}
	return unix.Writev(fd, iovs)
}

// readvSlices performs a single scatter/gather read.
func readvSlices(fd int, slices [][]byte) (int, error) {
	iovs := toIovecs(slices)
	if len(iovs) == 0 {
		return 0, nil
	}
	return unix.Readv(fd, iovs)
}

func wouldBlockErr(err error) bool {
	errno, ok := err.(unix.Errno)
	return ok && (errno == unix.EAGAIN || errno == unix.EWOULDBLOCK)
}

func isEINTRErr(err error) bool {
	errno, ok := err.(unix.Errno)
	return ok && errno == unix.EINTR
}
