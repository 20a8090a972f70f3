package reactor

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type funcHandler struct {
	Base
	onTimer      func() bool
	onReadable   func() bool
	onWritable   func() bool
	onError      func() bool
	onThreadInit func(*Reactor)
	threadInits  int
}

func (h *funcHandler) OnTimer() bool {
	if h.onTimer != nil {
		return h.onTimer()
	}
	return true
}
func (h *funcHandler) OnReadable() bool {
	if h.onReadable != nil {
		return h.onReadable()
	}
	return true
}
func (h *funcHandler) OnWritable() bool {
	if h.onWritable != nil {
		return h.onWritable()
	}
	return true
}
func (h *funcHandler) OnError() bool {
	if h.onError != nil {
		return h.onError()
	}
	return true
}
func (h *funcHandler) ThreadInit(r *Reactor) {
	h.threadInits++
	h.Base.ThreadInit(r)
	if h.onThreadInit != nil {
		h.onThreadInit(r)
	}
}

// TestStopIdempotent is spec.md §8's "stop() called from any number of
// threads with any ordering yields the same final end_status".
func TestStopIdempotent(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	r.RunThreaded()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Stop(true)
		}()
	}
	wg.Wait()
	require.True(t, r.Join())
}

// TestTimerDeadlineOrdering mirrors spec.md §8 scenario 3 at a smaller
// time scale: the shorter-interval handler fires first, within its
// deadline window, and records a non-zero last-fire time.
func TestTimerDeadlineOrdering(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	start := time.Now()
	fastFired := make(chan time.Duration, 1)

	fast := &funcHandler{}
	fast.Interval = 200 * time.Millisecond
	fast.onTimer = func() bool {
		select {
		case fastFired <- time.Since(start):
		default:
		}
		return true
	}
	fast.onThreadInit = func(rr *Reactor) {
		rr.Schedule(fast)
	}

	slow := &funcHandler{}
	slow.Interval = 1000 * time.Millisecond
	slow.onThreadInit = func(rr *Reactor) {
		rr.Schedule(slow)
	}

	r.Attach(fast)
	r.Attach(slow)
	r.RunThreaded()

	var elapsed time.Duration
	select {
	case elapsed = <-fastFired:
	case <-time.After(2 * time.Second):
		t.Fatal("fast timer never fired")
	}
	require.GreaterOrEqual(t, elapsed, 190*time.Millisecond)
	require.LessOrEqual(t, elapsed, 400*time.Millisecond)
	require.False(t, fast.LastFire.IsZero())

	r.Stop(true)
	require.True(t, r.Join())
}

// setNonblockFile returns f's descriptor switched to non-blocking mode.
// Callers use the returned fd from then on: every File.Fd call puts the
// descriptor back into blocking mode.
func setNonblockFile(f *os.File) int {
	fd := int(f.Fd())
	_ = unix.SetNonblock(fd, true)
	return fd
}

// TestPipePump mirrors spec.md §8 scenario 2: a writer pushes 48 1KB
// chunks through a non-blocking pipe, and the reader accumulates the
// same total.
func TestPipePump(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	rfd := setNonblockFile(rf)
	wfd := setNonblockFile(wf)

	const chunks = 48
	const chunkSize = 1024
	chunk := make([]byte, chunkSize)

	var written, read int
	writer := &funcHandler{}
	writer.SetFD(wfd)
	writer.onWritable = func() bool {
		for written < chunks*chunkSize {
			n, err := unix.Write(wfd, chunk)
			if n > 0 {
				written += n
			}
			if err != nil {
				break
			}
		}
		if written >= chunks*chunkSize {
			_ = r.SetInterest(writer, false, false)
		}
		return true
	}
	writer.onThreadInit = func(rr *Reactor) {
		_ = rr.SetInterest(writer, false, true)
	}

	done := make(chan struct{})
	reader := &funcHandler{}
	reader.SetFD(rfd)
	buf := make([]byte, 4096)
	reader.onReadable = func() bool {
		for {
			n, err := unix.Read(rfd, buf)
			if n > 0 {
				read += n
			}
			if err != nil || n <= 0 {
				break
			}
		}
		if read >= chunks*chunkSize {
			select {
			case <-done:
			default:
				close(done)
			}
		}
		return true
	}
	reader.onThreadInit = func(rr *Reactor) {
		_ = rr.SetInterest(reader, true, false)
	}

	r.Attach(writer)
	r.Attach(reader)
	r.RunThreaded()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("pipe pump did not complete")
	}

	r.Stop(true)
	require.True(t, r.Join())
	require.Equal(t, chunks*chunkSize, written)
	require.Equal(t, chunks*chunkSize, read)
	require.True(t, writer.LastFire.IsZero())
	require.True(t, reader.LastFire.IsZero())
}
