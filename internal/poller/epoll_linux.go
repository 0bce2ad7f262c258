//go:build linux

package poller

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// epollPoller is the default readiness backend: one epoll instance plus an
// eventfd used for cross-thread wakeups.
type epollPoller struct {
	epfd    int
	wakeFd  int
	scratch []unix.EpollEvent
}

// NewEpoll creates an edge-triggered epoll poller.
func NewEpoll() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	// level-triggered is fine here, the wake counter is drained on sight
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl add wakeup: %w", err)
	}
	return &epollPoller{epfd: epfd, wakeFd: wakeFd}, nil
}

func (p *epollPoller) Add(fd int, flags Flags, token uint32) error {
	events := uint32(unix.EPOLLET)
	if flags&Readable != 0 {
		events |= unix.EPOLLIN
	}
	if flags&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd), Pad: int32(token)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Wait(events []Event, timeoutMs int) (int, error) {
	if cap(p.scratch) < len(events) {
		p.scratch = make([]unix.EpollEvent, len(events))
	}
	scratch := p.scratch[:len(events)]

	n, err := unix.EpollWait(p.epfd, scratch, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}

	out := 0
	for i := 0; i < n; i++ {
		ev := scratch[i]
		if int(ev.Fd) == p.wakeFd {
			p.drainWakeup()
			continue
		}
		var flags Flags
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			flags |= Closed
		}
		if ev.Events&unix.EPOLLIN != 0 {
			flags |= Readable
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			flags |= Writable
		}
		events[out] = Event{Fd: int(ev.Fd), Token: uint32(ev.Pad), Flags: flags}
		out++
	}
	return out, nil
}

func (p *epollPoller) drainWakeup() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (p *epollPoller) Wakeup() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakeFd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *epollPoller) Close() error {
	unix.Close(p.wakeFd)
	if err := unix.Close(p.epfd); err != nil {
		return fmt.Errorf("close epoll fd: %w", err)
	}
	return nil
}
