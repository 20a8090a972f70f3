//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// readinessEvent is one fd's worth of edge-ready state delivered by
// the poller in a single epoll_wait batch (spec.md §4.1 step 1: the
// loop dispatches events collected in the previous iteration).
type readinessEvent struct {
	fd      int
	read    bool
	write   bool
	errored bool
	hangup  bool
	flags   uint32
}

type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: fd}, nil
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

func interestMask(wantRead, wantWrite bool) uint32 {
	var ev uint32 = unix.EPOLLRDHUP
	if wantRead {
		ev |= unix.EPOLLIN
	}
	if wantWrite {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *poller) add(fd int, wantRead, wantWrite bool) error {
	ev := &unix.EpollEvent{Events: interestMask(wantRead, wantWrite), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *poller) modify(fd int, wantRead, wantWrite bool) error {
	ev := &unix.EpollEvent{Events: interestMask(wantRead, wantWrite), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *poller) remove(fd int) error {
	// the event argument is ignored by EPOLL_CTL_DEL on modern
	// kernels but older ones require a non-nil pointer.
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

// wait blocks for up to timeoutMS (negative means indefinite) and
// appends ready events to dst, returning the extended slice.
func (p *poller) wait(dst []readinessEvent, timeoutMS int) ([]readinessEvent, error) {
	var raw [maxPollEvents]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, raw[:], timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		e := raw[i]
		dst = append(dst, readinessEvent{
			fd:      int(e.Fd),
			read:    e.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0,
			write:   e.Events&unix.EPOLLOUT != 0,
			errored: e.Events&unix.EPOLLERR != 0,
			hangup:  e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			flags:   e.Events,
		})
	}
	return dst, nil
}

const maxPollEvents = 256

func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

func closeFD(fd int) {
	_ = unix.Close(fd)
}

func makeWakeupPipe() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func wouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func isEINTR(err error) bool {
	return err == unix.EINTR
}

func rawRead(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func rawWrite(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}
