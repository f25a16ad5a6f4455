package dectmon

import "time"

/*------------------------------------------------------------------
 *
 * Purpose:	4.H Event/timer runtime adapter: the capability
 *		interface the core is written against, so it stays
 *		portable across event-loop implementations (epoll,
 *		kqueue, a simulated clock for tests) per design note
 *		9.A.5.
 *
 *------------------------------------------------------------------*/

// FdHandler is invoked when a registered file descriptor becomes
// read-ready.
type FdHandler func()

// TimerHandler is invoked when a one-shot timer fires.
type TimerHandler func()

// TimerID identifies a registered one-shot timer so it can be
// cancelled later. Cancelling is idempotent (section 5): cancelling an
// already-fired or already-cancelled timer is a no-op.
type TimerID uint64

// EventLoop is the capability interface 4.H exposes to the core:
// register a file descriptor for read-readiness, register a one-shot
// timer, and cancel a timer. Implementations: eventloop_epoll.go
// (Linux, golang.org/x/sys/unix) for production, and a simulated
// clock in tests.
type EventLoop interface {
	RegisterFd(fd int, onReadable FdHandler) error
	RegisterTimer(d time.Duration, onFire TimerHandler) TimerID
	CancelTimer(id TimerID)
	// Run drives the loop until Stop is called.
	Run() error
	Stop()
}

// Event is the tagged variant ingress dispatches into the core,
// replacing the original's per-layer callback tables (design note
// 9.A.3): "layers consume an event enum (Burst, MmeInfo, TimerFired)".
type Event struct {
	Kind EventKind

	Burst   *Burst
	MmeInfo *MacMeInfo
}

type EventKind int

const (
	EventBurst EventKind = iota
	EventMmeInfo
)

// HandleEvent routes one ingress event to the layer that consumes it:
// bursts to the MAC layer, MAC_ME_INFO indications to the cluster
// manager's scan/lock state machine. This is the single dispatch
// point a capture-driver binding calls from its fd handler.
func (e *Engine) HandleEvent(ev Event) error {
	switch ev.Kind {
	case EventBurst:
		return e.ProcessBurst(ev.Burst)
	case EventMmeInfo:
		return e.Cluster.HandleMacMeInfo(*ev.MmeInfo)
	default:
		return newProtocolError("ingress", e.Cluster.name, errUnknownEvent{ev.Kind})
	}
}

type errUnknownEvent struct{ kind EventKind }

func (errUnknownEvent) Error() string { return "unrecognized ingress event kind" }
