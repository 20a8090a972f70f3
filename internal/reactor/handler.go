package reactor

import "time"

// Handler is the callback surface the reactor drives. Every callback
// returning false suppresses the remaining callbacks for the current
// readiness event (spec.md §4.2).
type Handler interface {
	OnReadable() bool
	OnWritable() bool
	OnError() bool
	OnHangup(flags uint32) bool
	OnTimer() bool

	// ThreadInit is invoked the first time the handler is attached to
	// a reactor, so it can set its own interests.
	ThreadInit(r *Reactor)

	// HandlerBase returns the embedded bookkeeping struct used by the
	// reactor to track fd, interests, and timer state. Named
	// HandlerBase rather than Base to avoid shadowing the promoted
	// field every embedder gets from anonymously embedding Base.
	HandlerBase() *Base
}

// Base is the handler bookkeeping described in spec.md §3 "Handler
// registration": one handle, one recurring interval, read/write
// interest bits, and the reactor link. Embed Base in every layer
// built on top of the reactor and override the Handler callbacks you
// care about; Base supplies no-op defaults for the rest.
type Base struct {
	R     *Reactor
	owner Handler // the outer Handler this Base is embedded in

	FD    int
	HasFD bool

	WantRead  bool
	WantWrite bool

	Interval time.Duration
	NextFire time.Time
	LastFire time.Time
}

func (b *Base) HandlerBase() *Base { return b }

// Owner returns the outer Handler this Base is embedded in, as
// recorded by the reactor at attach time.
func (b *Base) Owner() Handler { return b.owner }

func (b *Base) OnReadable() bool           { return true }
func (b *Base) OnWritable() bool           { return true }
func (b *Base) OnError() bool              { return true }
func (b *Base) OnHangup(flags uint32) bool { return true }
func (b *Base) OnTimer() bool              { return true }
func (b *Base) ThreadInit(r *Reactor)      { b.R = r }

// SetFD installs a non-blocking handle for this handler. It does not
// itself register interest with the reactor; call SetInterest on the
// owning reactor for that.
func (b *Base) SetFD(fd int) {
	b.FD = fd
	b.HasFD = true
}

// Release closes the handle, clears interests via the reactor, and
// drops the reactor reference (spec.md §4.2).
func (b *Base) Release() {
	if b.R != nil {
		b.R.release(b)
		b.R = nil
	}
	if b.HasFD {
		closeFD(b.FD)
		b.HasFD = false
	}
}
