package dectmon

import "time"

/*------------------------------------------------------------------
 *
 * Purpose:	4.G Handle / cluster manager: per-cluster lock state,
 *		PARI, PT roster, the 24-slot TBC map, and the lock
 *		timer. This is the only component that mutates the slot
 *		map (section 2's data-flow note), so mac.go always goes
 *		through AllocateTBC/FreeTBC rather than touching slots
 *		directly.
 *
 *------------------------------------------------------------------*/

// LockTimeout is DECT_LOCK_TIMEOUT from the original source: a fixed
// 15 seconds, not configurable (SPEC_FULL 11).
const LockTimeout = 15 * time.Second

// CaptureDriver is the external collaborator contract for the raw
// capture cluster (4.A/6): issuing a scan request and confirming a
// sighted PARI. The real driver binds a hardware capture cluster;
// tests use a fake.
type CaptureDriver interface {
	RequestScan(cluster string) error
	RequestConfirm(cluster string, pari PARI) error
}

// ClusterHandle is one capture cluster (section 3's Cluster Handle
// entity).
type ClusterHandle struct {
	name string

	pari   PARI
	rpn    *uint8 // optional radio-part suffix (RFPI = PARI+RPN), SPEC_FULL 11
	locked bool

	lockTimer   TimerID
	lockPending bool

	pts  *ptArena
	tbcs *tbcArena

	slots [24]TbcID

	pin    string
	driver CaptureDriver
	state  *MonitorState
	loop   EventLoop

	// tuner, when present, steps a hamlib-controlled capture front end
	// across the DECT band one RF channel per scan request.
	tuner       *Tuner
	scanChannel int

	// pendingAccess tracks an access-request seen on a slot, awaiting
	// its matching bearer-confirm (4.D.2).
	pendingAccess map[uint8]*pendingTbc
	// idleTimers is the per-TBC silence timer (4.D.3).
	idleTimers map[TbcID]TimerID
}

type pendingTbc struct {
	fmid   uint16
	pmid   uint32
	duplex bool
}

// Name returns the cluster's opaque, capture-driver-understood name.
func (h *ClusterHandle) Name() string { return h.name }

// Locked reports whether this handle currently holds a lock on an FP.
func (h *ClusterHandle) Locked() bool { return h.locked }

// PARI returns the currently adopted PARI, or the zero value if none.
func (h *ClusterHandle) PARI() PARI { return h.pari }

// RPN returns the radio-part suffix of the adopted RFPI (PARI+RPN),
// for FP systems with more than one radio head, or nil if the capture
// driver's MAC_ME_INFO indication never carried one (SPEC_FULL 11).
func (h *ClusterHandle) RPN() *uint8 { return h.rpn }

// Bind attaches the event loop and capture driver this handle will
// use for scanning and timers. Separate from OpenCluster so tests can
// construct a handle and swap in a fake driver/loop before exercising
// it.
func (h *ClusterHandle) Bind(loop EventLoop, driver CaptureDriver) {
	h.loop = loop
	h.driver = driver
}

// AttachTuner binds an optional hamlib-controlled front-end tuner to
// this handle; each subsequent Scan steps it to the next DECT RF
// channel before the scan request is issued, so repeated lock
// timeouts sweep the whole band.
func (h *ClusterHandle) AttachTuner(t *Tuner) {
	h.tuner = t
}

// Scan issues a scan request to the capture driver (4.G: "At startup,
// issue a scan request").
func (h *ClusterHandle) Scan() error {
	if h.driver == nil {
		return &MonitorError{Kind: ErrFatalResource, Layer: "cluster", Cluster: h.name, Err: errNoDriver{}}
	}

	if h.tuner != nil {
		if err := h.tuner.StepChannel(h.scanChannel % dectChannelCount); err != nil {
			return err
		}

		h.scanChannel++
	}

	return h.driver.RequestScan(h.name)
}

type errNoDriver struct{}

func (errNoDriver) Error() string { return "no capture driver bound" }

// HandleMacMeInfo implements dect_mac_me_info_ind: the three-way
// branch over a fresh PARI sighting, a capability confirmation, and a
// zero-capability unlock/timeout.
func (h *ClusterHandle) HandleMacMeInfo(info MacMeInfo) error {
	switch {
	case info.Pari != nil:
		return h.onPariSighted(*info.Pari, info.RPN)
	case info.HasFpc && info.Fpc != 0:
		return h.onCapabilitiesConfirmed()
	default:
		return h.onUnlock("capabilities zero")
	}
}

func (h *ClusterHandle) onPariSighted(pari PARI, rpn *uint8) error {
	if owner := h.state.findHandleByPARI(pari); owner != nil {
		// Already owned by some handle (possibly this one); a
		// duplicate sighting is not an error, just ignored.
		return nil
	}

	h.pari = pari
	h.rpn = rpn
	h.lockPending = true

	if h.driver != nil {
		if err := h.driver.RequestConfirm(h.name, pari); err != nil {
			return newProtocolError("cluster", h.name, err)
		}
	}

	if h.loop != nil {
		h.lockTimer = h.loop.RegisterTimer(LockTimeout, func() {
			_ = h.onLockTimeout()
		})
	}

	if h.state.Sink != nil {
		h.state.Sink.Lifecyclef(h.name, "MAC_ME_INFO-ind: EMC: %.4x FPN: %.5x", pari.EMC, pari.FPN)
	}

	return nil
}

func (h *ClusterHandle) onCapabilitiesConfirmed() error {
	if !h.lockPending {
		return nil
	}

	h.lockPending = false

	if h.loop != nil {
		h.loop.CancelTimer(h.lockTimer)
	}

	if !h.locked {
		h.locked = true
		h.state.lockedCount++

		if h.state.Metrics != nil {
			h.state.Metrics.SetLockedCount(h.state.lockedCount)
		}
	}

	if h.state.Sink != nil {
		h.state.Sink.Lifecyclef(h.name, "locked (%d): EMC: %.4x FPN: %.5x", h.state.lockedCount, h.pari.EMC, h.pari.FPN)
	}

	return nil
}

// onLockTimeout is the lock_timer callback: a non-fatal lock-timeout
// error is recorded and the cluster returns to scanning (section 7).
func (h *ClusterHandle) onLockTimeout() error {
	h.lockPending = false
	h.pari = PARI{}
	h.rpn = nil

	if h.state.Sink != nil {
		h.state.Sink.Lifecyclef(h.name, "timeout, lock failed")
	}

	if h.state.Metrics != nil {
		h.state.Metrics.IncProtocolError("cluster", ErrLockTimeout.String())
	}

	return h.Scan()
}

func (h *ClusterHandle) onUnlock(reason string) error {
	h.lockPending = false

	if h.locked {
		h.locked = false
		h.state.lockedCount--

		if h.state.Metrics != nil {
			h.state.Metrics.SetLockedCount(h.state.lockedCount)
		}

		if h.state.Sink != nil {
			h.state.Sink.Lifecyclef(h.name, "unlocked (%d): EMC: %.4x FPN: %.5x", h.state.lockedCount, h.pari.EMC, h.pari.FPN)
		}
	}

	h.pari = PARI{}
	h.rpn = nil

	return h.Scan()
}

// AllocateTBC creates a new TBC on slot1 (and, if duplex, its paired
// slot), rejecting creation if either slot is already occupied (4.D.2,
// invariant 2 of section 3). This is the only way a TBC enters the
// slot map.
func (h *ClusterHandle) AllocateTBC(slot1 uint8, duplex bool, fmid uint16, pmid uint32) (*TBC, TbcID, error) {
	assertf(slot1 < 24, "slot %d out of range", slot1)

	if h.slots[slot1] != NoTbc {
		return nil, NoTbc, newProtocolError("mac", h.name, errSlotBusy{slot1})
	}

	var slot2 uint8
	if duplex {
		slot2 = pairedSlot(slot1)

		if h.slots[slot2] != NoTbc {
			return nil, NoTbc, newProtocolError("mac", h.name, errSlotBusy{slot2})
		}
	}

	var t = &TBC{Slot1: slot1, Slot2: slot2, Duplex: duplex, FMID: fmid, PMID: pmid, State: TbcRequested}
	var id = h.tbcs.create(t)

	h.slots[slot1] = id
	if duplex {
		h.slots[slot2] = id
	}

	if h.state.Metrics != nil {
		h.state.Metrics.IncTbcCount()
	}

	return t, id, nil
}

// FreeTBC retires a TBC and frees every slot it occupied (4.D.3:
// "teardown of one slot tears down the pair").
func (h *ClusterHandle) FreeTBC(id TbcID) {
	var t = h.tbcs.get(id)
	if t == nil {
		return
	}

	h.slots[t.Slot1] = NoTbc
	if t.Duplex {
		h.slots[t.Slot2] = NoTbc
	}

	h.tbcs.remove(id)

	if h.state.Metrics != nil {
		h.state.Metrics.DecTbcCount()
	}
}

// TBCAtSlot returns the TBC currently occupying slot, or nil.
func (h *ClusterHandle) TBCAtSlot(slot uint8) (*TBC, TbcID) {
	assertf(slot < 24, "slot %d out of range", slot)

	var id = h.slots[slot]
	if id == NoTbc {
		return nil, NoTbc
	}

	return h.tbcs.get(id), id
}

// PT returns the arena-backed PortablePart for an IPUI, creating it on
// first sighting (section 3's PT lifecycle).
func (h *ClusterHandle) PT(ipui string) (*PortablePart, PtID) {
	return h.pts.getOrCreate(ipui)
}

// RetirePTIfIdle removes a PT from the roster once it is no longer
// Retained (no live bearer, no in-flight MM procedure).
func (h *ClusterHandle) RetirePTIfIdle(id PtID) {
	var pt = h.pts.get(id)
	if pt != nil && !pt.Retained() {
		h.pts.remove(id)
	}
}

// AuthPIN returns the configured key-allocation PIN for this cluster.
func (h *ClusterHandle) AuthPIN() string { return h.pin }

type errSlotBusy struct{ slot uint8 }

func (e errSlotBusy) Error() string { return "slot already occupied" }
