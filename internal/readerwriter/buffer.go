package readerwriter

import "github.com/stardog-union/rocksnmp/internal/statemachine"

// Buffer is spec.md §3's "Reader/Writer buffer": an abstract
// scatter/gather buffer exposing a write-side and a read-side
// contract, plus the StateMachine a ReaderWriter can register itself
// as a completion watcher on (so a producer flipping the buffer to
// data-ready can wake a queued writer).
type Buffer interface {
	StateMachine() *statemachine.StateMachine

	// Write side.
	WriteSlices() [][]byte // remaining iovec slices to write
	BytesWritten() int
	TargetEnd() int
	IsDataReady() bool
	MarkWritten(n int)

	// Read side.
	ReadSlices() [][]byte // iovec slices available to read into
	BytesRead() int
	RequiredMinimum() int
	MarkRead(n int)
	Grow(minimum int)
}

// Bytes is a single contiguous-storage Buffer. It backs request,
// response, and the subagent's inbound frame buffer, all of which
// need read-side growth (spec.md §4.7 header parser) or serve as both
// the write and the read buffer of the same request/response object.
type Bytes struct {
	sm *statemachine.StateMachine

	data   []byte
	target int
	ready  bool

	written int
	read    int
	reqMin  int
}

// NewWriteBytes builds a Buffer ready to be written immediately.
func NewWriteBytes(data []byte) *Bytes {
	return &Bytes{sm: statemachine.New(statemachine.NopWatcher{}), data: data, target: len(data), ready: true}
}

// NewPendingBytes builds a Buffer whose content is not yet ready; the
// producer calls MarkReady once it is.
func NewPendingBytes(data []byte) *Bytes {
	return &Bytes{sm: statemachine.New(statemachine.NopWatcher{}), data: data, target: len(data), ready: false}
}

// NewReadBytes builds an empty Buffer whose backing storage grows to
// accommodate RequiredMinimum.
func NewReadBytes(requiredMinimum int) *Bytes {
	return &Bytes{sm: statemachine.New(statemachine.NopWatcher{}), data: make([]byte, requiredMinimum), reqMin: requiredMinimum}
}

func (b *Bytes) StateMachine() *statemachine.StateMachine { return b.sm }

func (b *Bytes) WriteSlices() [][]byte {
	if b.written >= b.target {
		return nil
	}
	return [][]byte{b.data[b.written:b.target]}
}
func (b *Bytes) BytesWritten() int  { return b.written }
func (b *Bytes) TargetEnd() int     { return b.target }
func (b *Bytes) IsDataReady() bool  { return b.ready }
func (b *Bytes) MarkWritten(n int)  { b.written += n }

// MarkReady flips the buffer to data-ready and sends DATA_READY so a
// ReaderWriter that queued this buffer can promote it (spec.md §4.4).
func (b *Bytes) MarkReady() {
	b.ready = true
	b.sm.SendEdge(EdgeDataReady, true)
}

func (b *Bytes) ReadSlices() [][]byte {
	if b.read >= len(b.data) {
		return nil
	}
	return [][]byte{b.data[b.read:]}
}
func (b *Bytes) BytesRead() int       { return b.read }
func (b *Bytes) RequiredMinimum() int { return b.reqMin }
func (b *Bytes) MarkRead(n int)       { b.read += n }

// Grow extends the backing storage so RequiredMinimum becomes at
// least minimum (spec.md §3 "required_minimum may grow the backing
// storage on demand").
func (b *Bytes) Grow(minimum int) {
	if minimum <= b.reqMin {
		return
	}
	if minimum > len(b.data) {
		grown := make([]byte, minimum)
		copy(grown, b.data)
		b.data = grown
	}
	b.reqMin = minimum
}

// Data returns the full backing storage (len == TargetEnd for a
// write buffer sized at construction).
func (b *Bytes) Data() []byte { return b.data }

// ReadData returns the bytes actually read so far.
func (b *Bytes) ReadData() []byte { return b.data[:b.read] }

// Reset rewinds both cursors, for reusing a buffer (e.g. a
// request/response object reused across repeated requests).
func (b *Bytes) Reset(data []byte, ready bool) {
	b.data = data
	b.target = len(data)
	b.ready = ready
	b.written = 0
	b.read = 0
	b.reqMin = 0
}
