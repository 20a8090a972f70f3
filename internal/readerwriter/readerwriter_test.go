package readerwriter

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/stardog-union/rocksnmp/internal/reactor"
	"github.com/stardog-union/rocksnmp/internal/statemachine"
)

// pipeEnd composes a ReaderWriter over a real non-blocking pipe fd,
// recording every edge it's sent so the test can assert on the
// sequence rather than just the final byte counts.
type pipeEnd struct {
	ReaderWriter
	edges []statemachine.Edge
}

func newPipeEnd() *pipeEnd {
	p := &pipeEnd{}
	p.Init(p)
	return p
}

func (p *pipeEnd) OnEdge(edge statemachine.Edge, source *statemachine.StateMachine, pre bool) bool {
	p.edges = append(p.edges, edge)
	return true
}

// setNonblock returns f's descriptor switched to non-blocking mode.
// Callers use the returned fd from then on: every File.Fd call puts the
// descriptor back into blocking mode.
func setNonblock(f *os.File) int {
	fd := int(f.Fd())
	_ = unix.SetNonblock(fd, true)
	return fd
}

// TestWriteThenReadAcrossPipe drives a Bytes write buffer through a
// writer-side ReaderWriter and a growable Bytes read buffer through a
// reader-side ReaderWriter over a real pipe, asserting EdgeWriteDone
// and EdgeReadDone both fire and the payload round-trips intact.
func TestWriteThenReadAcrossPipe(t *testing.T) {
	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()
	rfd := setNonblock(rf)
	wfd := setNonblock(wf)

	r, err := reactor.New()
	require.NoError(t, err)

	writer := newPipeEnd()
	writer.SetFD(wfd)
	r.Attach(writer)

	reader := newPipeEnd()
	reader.SetFD(rfd)
	reader.SetAutoRead(true)
	r.Attach(reader)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	wbuf := NewWriteBytes(payload)
	rbuf := NewReadBytes(len(payload))

	r.RunThreaded()
	time.Sleep(20 * time.Millisecond) // let ThreadInit register both handlers

	writer.Write(wbuf)
	reader.Read(rbuf)

	require.Eventually(t, func() bool {
		return rbuf.BytesRead() >= len(payload)
	}, 2*time.Second, 5*time.Millisecond)

	r.Stop(true)
	require.True(t, r.Join())

	require.Equal(t, payload, rbuf.ReadData())
	require.Contains(t, writer.edges, EdgeWriteDone)
	require.Contains(t, reader.edges, EdgeReadDone)
}

// TestWriteQueueFIFOOrder mirrors spec.md §4.4: a second buffer queued
// while the first is still in flight is written only after the first
// completes, and in the order it was queued.
func TestWriteQueueFIFOOrder(t *testing.T) {
	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()
	rfd := setNonblock(rf)
	wfd := setNonblock(wf)

	r, err := reactor.New()
	require.NoError(t, err)

	writer := newPipeEnd()
	writer.SetFD(wfd)
	r.Attach(writer)

	reader := newPipeEnd()
	reader.SetFD(rfd)
	reader.SetAutoRead(true)
	r.Attach(reader)

	first := NewWriteBytes([]byte("first-"))
	second := NewWriteBytes([]byte("second"))
	rbuf := NewReadBytes(len("first-second"))

	r.RunThreaded()
	time.Sleep(20 * time.Millisecond) // let ThreadInit register both handlers

	writer.Write(first)
	writer.Write(second)
	reader.Read(rbuf)

	require.Eventually(t, func() bool {
		return rbuf.BytesRead() >= len("first-second")
	}, 2*time.Second, 5*time.Millisecond)

	r.Stop(true)
	require.True(t, r.Join())

	require.Equal(t, "first-second", string(rbuf.ReadData()))
}

// TestBufferGrow exercises Buffer.Grow in isolation (spec.md §3
// "required_minimum may grow the backing storage on demand"), as used
// by snmpagent's header-then-payload frame buffer.
func TestBufferGrow(t *testing.T) {
	b := NewReadBytes(4)
	require.Equal(t, 4, b.RequiredMinimum())
	require.Len(t, b.Data(), 4)

	b.Grow(20)
	require.Equal(t, 20, b.RequiredMinimum())
	require.Len(t, b.Data(), 20)

	b.Grow(10) // shrinking the minimum is not allowed
	require.Equal(t, 20, b.RequiredMinimum())
}
