//go:build linux && giouring

package poller

import (
	"encoding/binary"
	"fmt"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

// wakeToken marks completions belonging to the internal wakeup eventfd.
const wakeToken = ^uint64(0)

// uringPoller delivers readiness through io_uring multishot poll instead of
// epoll. One multishot POLL_ADD per registered fd stays armed until the fd
// is removed, so the loop observes the same coalesced edge-style readiness
// it gets from EPOLLET.
type uringPoller struct {
	ring   *giouring.Ring
	wakeFd int
	cqes   []*giouring.CompletionQueueEvent
}

// NewUring creates an io_uring-backed poller.
func NewUring(entries uint32) (Poller, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("create ring: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		ring.QueueExit()
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	p := &uringPoller{ring: ring, wakeFd: wakeFd}
	if err := p.arm(wakeFd, uint32(unix.POLLIN), wakeToken); err != nil {
		unix.Close(wakeFd)
		ring.QueueExit()
		return nil, err
	}
	return p, nil
}

func (p *uringPoller) arm(fd int, mask uint32, userData uint64) error {
	sqe := p.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("submission queue full")
	}
	sqe.PreparePollMultishot(fd, mask)
	sqe.UserData = userData
	if _, err := p.ring.SubmitAndWait(0); err != nil {
		return fmt.Errorf("submit poll add fd %d: %w", fd, err)
	}
	return nil
}

// userData packs (token, fd) the way the loop's epoll backend packs its
// registration token next to the fd.
func packUserData(fd int, token uint32) uint64 {
	return uint64(token)<<32 | uint64(uint32(fd))
}

func (p *uringPoller) Add(fd int, flags Flags, token uint32) error {
	var mask uint32
	if flags&Readable != 0 {
		mask |= uint32(unix.POLLIN)
	}
	if flags&Writable != 0 {
		mask |= uint32(unix.POLLOUT)
	}
	mask |= uint32(unix.POLLERR | unix.POLLHUP)
	return p.arm(fd, mask, packUserData(fd, token))
}

func (p *uringPoller) Del(fd int) error {
	// The multishot poll is keyed by user data; fd alone is not enough to
	// rebuild it, so cancel every armed poll on this fd.
	sqe := p.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("submission queue full")
	}
	sqe.PrepareCancelFd(fd, 0)
	sqe.UserData = 0
	if _, err := p.ring.SubmitAndWait(0); err != nil {
		return fmt.Errorf("submit poll cancel fd %d: %w", fd, err)
	}
	return nil
}

func (p *uringPoller) Wait(events []Event, timeoutMs int) (int, error) {
	if cap(p.cqes) < len(events) {
		p.cqes = make([]*giouring.CompletionQueueEvent, len(events))
	}
	cqes := p.cqes[:len(events)]

	waitNr := uint32(0)
	if timeoutMs != 0 {
		waitNr = 1
	}
	if _, err := p.ring.SubmitAndWait(waitNr); err != nil && err != unix.EINTR {
		return 0, fmt.Errorf("submit and wait: %w", err)
	}

	got := p.ring.PeekBatchCQE(cqes)
	out := 0
	for i := uint32(0); i < got; i++ {
		cqe := cqes[i]
		if cqe.UserData == wakeToken {
			p.drainWakeup()
			continue
		}
		if cqe.UserData == 0 || cqe.Res < 0 {
			// cancel acknowledgements and dead multishot arms
			continue
		}
		revents := uint32(cqe.Res)
		var flags Flags
		if revents&uint32(unix.POLLERR|unix.POLLHUP) != 0 {
			flags |= Closed
		}
		if revents&uint32(unix.POLLIN) != 0 {
			flags |= Readable
		}
		if revents&uint32(unix.POLLOUT) != 0 {
			flags |= Writable
		}
		events[out] = Event{
			Fd:    int(uint32(cqe.UserData)),
			Token: uint32(cqe.UserData >> 32),
			Flags: flags,
		}
		out++
	}
	p.ring.CQAdvance(got)
	return out, nil
}

func (p *uringPoller) drainWakeup() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

func (p *uringPoller) Wakeup() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakeFd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *uringPoller) Close() error {
	unix.Close(p.wakeFd)
	p.ring.QueueExit()
	return nil
}
