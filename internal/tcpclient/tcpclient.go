// Package tcpclient implements spec.md §4.5: a connect state machine
// layered on readerwriter.ReaderWriter.
package tcpclient

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/stardog-union/rocksnmp/internal/reactor"
	"github.com/stardog-union/rocksnmp/internal/readerwriter"
	"github.com/stardog-union/rocksnmp/internal/rerr"
	"github.com/stardog-union/rocksnmp/internal/rlog"
	"github.com/stardog-union/rocksnmp/internal/statemachine"
)

const layerBase = 300

// Edges this layer introduces. readerwriter.EdgeError/EdgeTimeout are
// reused directly rather than shadowed, since they denote the same
// transport failure regardless of which layer observed it first.
const (
	EdgeIPGiven statemachine.Edge = layerBase + iota
	EdgeWriteWait
	EdgeConnected
	EdgeCloseRequest
)

// Node identifiers for TCPClient's own state machine (spec.md §4.5).
const (
	StateClosed = iota
	StateConnecting
	StateEstablished
	StateReading
	StateWriting
	StateReadWrite
)

// Dialer is the host connect primitive TCPClient delegates to. The
// default implementation issues a real non-blocking connect(2); tests
// substitute a stub.
type Dialer interface {
	Socket() (fd int, err error)
	Connect(fd int, ip net.IP, port int) (inProgress bool, err error)
}

type realDialer struct{}

func (realDialer) Socket() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
}

func (realDialer) Connect(fd int, ip net.IP, port int) (bool, error) {
	var sa unix.SockaddrInet4
	sa.Port = port
	v4 := ip.To4()
	if v4 == nil {
		return false, rerr.New(rerr.Construction, "Connect", "address is not IPv4", nil)
	}
	copy(sa.Addr[:], v4)

	err := unix.Connect(fd, &sa)
	if err == nil {
		return false, nil
	}
	if err == unix.EINPROGRESS {
		return true, nil
	}
	return false, err
}

// TCPClient is the spec.md §4.5 connect state machine.
type TCPClient struct {
	readerwriter.ReaderWriter
	sm *statemachine.StateMachine

	ip   net.IP
	port int

	dialer      Dialer
	lingerReset bool
}

// New binds the client's own state machine to owner (the layer above,
// e.g. a request/response queue) and wires the ReaderWriter below it
// to receive this object's OnEdge first.
func New(owner statemachine.Watcher) *TCPClient {
	tc := &TCPClient{dialer: realDialer{}}
	tc.ReaderWriter.Init(tc)
	tc.sm = statemachine.New(owner)
	return tc
}

func (tc *TCPClient) StateMachine() *statemachine.StateMachine { return tc.sm }

// IP and Port return the currently configured endpoint.
func (tc *TCPClient) IP() net.IP { return tc.ip }
func (tc *TCPClient) Port() int  { return tc.port }

// SetDialer overrides the connect primitive, for tests.
func (tc *TCPClient) SetDialer(d Dialer) { tc.dialer = d }

// SetLingerReset controls whether Close() issues SO_LINGER{on,0}
// before shutdown (spec.md §4.5).
func (tc *TCPClient) SetLingerReset(v bool) { tc.lingerReset = v }

// SetEndpoint records the target without connecting; ThreadInit (or a
// later Connect) uses it.
func (tc *TCPClient) SetEndpoint(ip net.IP, port int) {
	tc.ip = ip
	tc.port = port
}

// Connect (re)dials ip:port, resetting any buffered state from a
// previous attempt (spec.md §4.5 "repeated connection attempts... are
// supported and reset all buffers").
func (tc *TCPClient) Connect(ip net.IP, port int) {
	tc.SetEndpoint(ip, port)
	tc.ReaderWriter.ResetForReconnect()
	tc.connectBegin()
}

// ThreadInit implements reactor.Handler. If a non-zero endpoint is
// set, it emits IP_GIVEN and begins connecting (spec.md §4.5).
func (tc *TCPClient) ThreadInit(r *reactor.Reactor) {
	tc.Base.ThreadInit(r)
	if tc.ip != nil && !tc.ip.IsUnspecified() && tc.port != 0 {
		tc.sm.SendEdge(EdgeIPGiven, true)
		tc.connectBegin()
	}
}

func (tc *TCPClient) connectBegin() {
	fd, err := tc.dialer.Socket()
	if err != nil {
		rlog.Error("tcpclient: socket() failed", "err", err)
		tc.sm.SendEdge(readerwriter.EdgeError, true)
		return
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		rlog.Error("tcpclient: set nonblocking failed", "err", err)
		tc.sm.SendEdge(readerwriter.EdgeError, true)
		return
	}
	tc.Base.SetFD(fd)

	inProgress, err := tc.dialer.Connect(fd, tc.ip, tc.port)
	switch {
	case err != nil:
		rlog.Error("tcpclient: connect() failed", "err", err)
		tc.sm.SendEdge(readerwriter.EdgeError, true)
	case inProgress:
		tc.sm.SetState(StateConnecting)
		if e := tc.Base.R.SetInterest(tc.Base.Owner(), false, true); e != nil {
			rlog.Error("tcpclient: failed to request write interest", "err", e)
		}
		tc.sm.SendEdge(EdgeWriteWait, true)
	default:
		tc.sm.SetState(StateEstablished)
		tc.sm.SendEdge(EdgeConnected, true)
	}
}

// OnEdge implements statemachine.Watcher, receiving every edge the
// embedded ReaderWriter emits.
func (tc *TCPClient) OnEdge(edge statemachine.Edge, source *statemachine.StateMachine, pre bool) bool {
	switch edge {
	case readerwriter.EdgeWritable:
		if tc.sm.CurrentNode() == StateConnecting {
			tc.sm.SetState(StateEstablished)
			tc.sm.SendEdge(EdgeConnected, true)
			return true
		}
		tc.sm.SendEdge(readerwriter.EdgeWritable, true)
	case readerwriter.EdgeError, readerwriter.EdgeTimeout:
		tc.sm.SetState(StateClosed)
		tc.sm.SendEdge(EdgeCloseRequest, true)
	default:
		// bubble WRITE_DONE / READ_DONE / HANGUP / DATA_READY as-is
		tc.sm.SendEdge(edge, true)
	}
	return true
}

// OnError implements reactor.Handler, overriding the embedded
// ReaderWriter's default (which tears the handle down via a bare
// rw.close(), skipping linger/shutdown): a self-sourced error performs
// the state machine's error-to-close transition and then runs the full
// Close sequence (spec.md §4.5: "close optionally issues a
// linger-reset option, performs a bidirectional shutdown, and
// delegates to the reader/writer close").
func (tc *TCPClient) OnError() bool {
	tc.sm.SetState(StateClosed)
	tc.sm.SendEdge(EdgeCloseRequest, true)
	tc.Close()
	return false
}

// OnTimer implements reactor.Handler, overriding the embedded
// ReaderWriter's default for the same reason as OnError.
func (tc *TCPClient) OnTimer() bool {
	tc.sm.SetState(StateClosed)
	tc.sm.SendEdge(EdgeCloseRequest, true)
	tc.Close()
	return true
}

// Close optionally issues a linger-reset option, performs a
// bidirectional shutdown, and delegates to the reader/writer close
// (spec.md §4.5).
func (tc *TCPClient) Close() {
	if tc.Base.HasFD {
		if tc.lingerReset {
			_ = unix.SetsockoptLinger(tc.Base.FD, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
		}
		_ = unix.Shutdown(tc.Base.FD, unix.SHUT_RDWR)
	}
	tc.sm.SetState(StateClosed)
	tc.ReaderWriter.Close()
}
