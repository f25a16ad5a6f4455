//go:build linux

package dectmon

import (
	"container/heap"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Linux epoll-backed 4.H event loop. Production
 *		implementation of the EventLoop capability interface,
 *		using golang.org/x/sys/unix directly rather than the
 *		stdlib net poller, since the core wants raw fds for
 *		capture-cluster sockets/devices, not net.Conn.
 *
 *------------------------------------------------------------------*/

const maxEpollEvents = 64

type epollLoop struct {
	epfd int

	handlers map[int]FdHandler
	timers   *timerHeap
	nextID   TimerID

	stop bool
}

// NewEpollEventLoop creates a Linux epoll-backed EventLoop.
func NewEpollEventLoop() (EventLoop, error) {
	var fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	return &epollLoop{
		epfd:     fd,
		handlers: make(map[int]FdHandler),
		timers:   newTimerHeap(),
	}, nil
}

func (l *epollLoop) RegisterFd(fd int, onReadable FdHandler) error {
	var ev = unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)} //nolint:gosec

	var err = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	if err != nil {
		return fmt.Errorf("epoll_ctl(ADD, %d): %w", fd, err)
	}

	l.handlers[fd] = onReadable

	return nil
}

func (l *epollLoop) RegisterTimer(d time.Duration, onFire TimerHandler) TimerID {
	l.nextID++
	var id = l.nextID

	heap.Push(l.timers, &timerEntry{id: id, deadline: time.Now().Add(d), fire: onFire})

	return id
}

func (l *epollLoop) CancelTimer(id TimerID) {
	l.timers.cancel(id)
}

func (l *epollLoop) Stop() {
	l.stop = true
}

func (l *epollLoop) Run() error {
	var events [maxEpollEvents]unix.EpollEvent

	for !l.stop {
		var timeout = l.timers.msUntilNext()

		var n, err = unix.EpollWait(l.epfd, events[:], timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}

			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := range n {
			if h, ok := l.handlers[int(events[i].Fd)]; ok {
				h()
			}
		}

		l.timers.fireDue()
	}

	return nil
}
