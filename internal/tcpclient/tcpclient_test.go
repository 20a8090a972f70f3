package tcpclient

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/stardog-union/rocksnmp/internal/reactor"
	"github.com/stardog-union/rocksnmp/internal/readerwriter"
	"github.com/stardog-union/rocksnmp/internal/statemachine"
)

type refusingDialer struct {
	fd int
}

func (d *refusingDialer) Socket() (int, error) { return d.fd, nil }
func (d *refusingDialer) Connect(fd int, ip net.IP, port int) (bool, error) {
	return false, unix.ECONNREFUSED
}

type recordingOwner struct {
	edges []statemachine.Edge
	done  chan struct{}
}

func (o *recordingOwner) OnEdge(edge statemachine.Edge, source *statemachine.StateMachine, pre bool) bool {
	o.edges = append(o.edges, edge)
	if edge == readerwriter.EdgeError {
		close(o.done)
	}
	return true
}

// TestConnectRefused mirrors spec.md §8 scenario 1: a non-blocking
// connect to a closed port fails synchronously with ECONNREFUSED, and
// the client reports IP_GIVEN then an error edge without ever reaching
// ESTABLISHED.
func TestConnectRefused(t *testing.T) {
	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	owner := &recordingOwner{done: make(chan struct{})}
	tc := New(owner)
	tc.SetDialer(&refusingDialer{fd: int(wf.Fd())})
	tc.SetEndpoint(net.ParseIP("127.0.0.1"), 705)

	r, err := reactor.New()
	require.NoError(t, err)
	r.Attach(tc)
	r.RunThreaded()

	select {
	case <-owner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("connect refusal never reported")
	}

	r.Stop(true)
	require.True(t, r.Join())

	require.Equal(t, []statemachine.Edge{EdgeIPGiven, readerwriter.EdgeError}, owner.edges)
	require.Equal(t, StateClosed, tc.StateMachine().CurrentNode())
}
