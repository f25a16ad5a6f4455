package dectmon

import (
	"fmt"
	"time"
)

/*------------------------------------------------------------------
 *
 * Purpose:	4.D MAC layer: A-field tail classification, TBC
 *		creation/teardown, per-direction C/F sequence tracking,
 *		and the B-field decryption envelope.
 *
 * Wire framing note: the exact T-MUX bit layout is licensed/ETSI
 * material the distilled spec deliberately abstracts away ("read the
 * T-MUX header to classify the tail"). This engine defines its own
 * byte-level tail framing carrying the same classification and
 * payload fields the rest of the spec depends on; see DESIGN.md.
 *
 *------------------------------------------------------------------*/

// TailKind classifies an A-field tail per 4.D.1.
type TailKind uint8

const (
	TailIdentities TailKind = iota // broadcast identity, static system info
	TailPaging
	TailQChannel // system info
	TailCT       // connection-oriented signalling
	TailMT       // MAC control
	TailNT       // identification
	TailPT       // paging
)

func (k TailKind) signalling() bool {
	return k == TailCT || k == TailMT
}

// MacControlOp is the M_T control opcode driving TBC lifecycle.
type MacControlOp uint8

const (
	MacAccessRequest MacControlOp = iota
	MacBearerConfirm
	MacRelease
)

// MultiframeDuration is one DECT multiframe: 16 frames of 10ms each.
const MultiframeDuration = 160 * time.Millisecond

// idleTeardownBound is "more than one multiframe" of silence (4.D.3).
const idleTeardownBound = 2 * MultiframeDuration

// ParseAField classifies the tail of an A-field and returns the
// tail-specific payload that follows the one-byte tail-kind header.
func ParseAField(a []byte) (TailKind, []byte, error) {
	if len(a) < 1 {
		return 0, nil, newProtocolError("mac", "", errShortAField{})
	}

	var kind = TailKind(a[0])
	if kind > TailPT {
		return 0, nil, newProtocolError("mac", "", errUnknownTail{a[0]})
	}

	return kind, a[1:], nil
}

type errShortAField struct{}

func (errShortAField) Error() string { return "A-field shorter than the tail-kind header" }

type errUnknownTail struct{ b byte }

func (errUnknownTail) Error() string { return "unrecognized A-field tail kind" }

// Engine is 4.D's MAC layer, bound to one cluster, the DLC layer
// behind it, and the NWK/audio collaborators its output ultimately
// reaches.
type Engine struct {
	Cluster *ClusterHandle
	Nwk     NwkSink
	Audio   AudioSink
	Mm      *MmEngine
}

// NewEngine builds a MAC engine over a bound cluster handle.
func NewEngine(h *ClusterHandle, nwk NwkSink, audio AudioSink) *Engine {
	var e = &Engine{Cluster: h, Nwk: nwk, Audio: audio}
	e.Mm = NewMmEngine(e)

	return e
}

// ProcessBurst is the MAC layer's entry point for every delivered
// burst (4.A -> 4.D data flow).
func (e *Engine) ProcessBurst(b *Burst) error {
	var kind, rest, err = ParseAField(b.AField)
	if err != nil {
		e.traceProtocolError(b.Slot, err)

		return err
	}

	if t, id := e.Cluster.TBCAtSlot(b.Slot); t != nil {
		e.resetIdleTimer(id, t)
		e.processBField(t, id, b)
	}

	switch kind {
	case TailMT:
		return e.handleMT(b, rest)
	case TailCT:
		return e.handleCT(b, rest)
	default:
		// Identities/paging/Q-channel/N_T/P_T: non-signalling tails
		// update system knowledge only; traced, no state change.
		e.Cluster.state.Sink.Emit(e.Cluster.name, LayerMAC, rest, "tail=%s slot=%d", tailName(kind), b.Slot)

		return nil
	}
}

func tailName(k TailKind) string {
	switch k {
	case TailIdentities:
		return "identities"
	case TailPaging:
		return "paging"
	case TailQChannel:
		return "q-channel"
	case TailCT:
		return "c_t"
	case TailMT:
		return "m_t"
	case TailNT:
		return "n_t"
	case TailPT:
		return "p_t"
	default:
		return "unknown"
	}
}

// handleMT processes an M_T tail: access-request, bearer-confirm, or
// release, per 4.D.2/4.D.3. Payload layout: [op, fmidHi, fmidLo,
// pmid0, pmid1, pmid2, duplexFlag].
func (e *Engine) handleMT(b *Burst, payload []byte) error {
	if len(payload) < 7 {
		return newProtocolError("mac", e.Cluster.name, errShortAField{})
	}

	var op = MacControlOp(payload[0])
	var fmid = uint16(payload[1])<<8 | uint16(payload[2])
	var pmid = uint32(payload[3])<<16 | uint32(payload[4])<<8 | uint32(payload[5])
	var duplex = payload[6] != 0

	switch op {
	case MacAccessRequest:
		e.Cluster.pendingAccess[b.Slot] = &pendingTbc{fmid: fmid, pmid: pmid, duplex: duplex}

		return nil

	case MacBearerConfirm:
		var pend = e.Cluster.pendingAccess[b.Slot]
		if pend == nil {
			return newProtocolError("mac", e.Cluster.name, errNoPendingAccess{b.Slot})
		}

		delete(e.Cluster.pendingAccess, b.Slot)

		var t, id, err = e.Cluster.AllocateTBC(b.Slot, pend.duplex, pend.fmid, pend.pmid)
		if err != nil {
			e.traceProtocolError(b.Slot, err)

			return err
		}

		t.State = TbcEstablished

		// PMID is the PT-specific identity this bearer actually
		// carries (the full IPUI is only learned, if ever, from a
		// later NWK identity exchange -- out of scope here per
		// section 1). Keying the PT arena on PMID is this engine's
		// resolution of that gap: it is enough to satisfy "a PT is
		// created on first observation of a PT identity on a bearer"
		// and to give 4.F's MM side-channel a stable PT to attach
		// derived keys to.
		var pt, ptID = e.Cluster.PT(pmidKey(t.PMID))
		t.PT = ptID
		t.Dl = dlEndpoint{pt: ptID}
		pt.Link = id

		// Bind the U-plane voice path at establishment: with a codec
		// collaborator configured, the PT gets its per-direction codec
		// state and pending buffers now, so decrypted B-field bytes
		// have somewhere to go (4.E).
		if e.Audio != nil && pt.Audio == nil {
			pt.Audio = NewAudioHandle()
		}

		// The silence bound starts counting from establishment, not
		// from the first post-confirm burst.
		e.resetIdleTimer(id, t)

		e.Cluster.state.Sink.Lifecyclef(e.Cluster.name, "TBC established slot=%d fmid=%.3x pmid=%.5x duplex=%v", b.Slot, t.FMID, t.PMID, t.Duplex)

		if e.Cluster.state.Metrics != nil {
			e.Cluster.state.Metrics.IncTbcEstablished()
		}

		return nil

	case MacRelease:
		var t, id = e.Cluster.TBCAtSlot(b.Slot)
		if t == nil {
			return nil
		}

		e.releaseTbc(id, t)

		return nil

	default:
		return newProtocolError("mac", e.Cluster.name, errUnknownControlOp{byte(op)})
	}
}

type errNoPendingAccess struct{ slot uint8 }

func (errNoPendingAccess) Error() string { return "bearer-confirm with no matching access-request" }

type errUnknownControlOp struct{ op byte }

func (errUnknownControlOp) Error() string { return "unrecognized M_T control opcode" }

// slotDirection derives a burst's direction from its slot number: the
// DECT frame's first half (slots 0..11) is FP->PT, the second half
// (slots 12..23) is PT->FP, which is exactly why a duplex bearer pairs
// slot and slot+12 (4.D.2).
func slotDirection(slot uint8) Direction {
	if slot < 12 {
		return DirFpToPt
	}

	return DirPtToFp
}

// handleCT processes a C_T tail carrying a C- or F-channel Lc
// segment. Payload layout: [flags, (lsigHi, lsigLo if start flag
// set), data...]. flags bit0 is the C_S (respectively C_F) sequence
// bit, bit1 is "start of assembly", bit2 selects the F-channel
// instead of the C-channel. Both logical channels share the
// direction's Mac-Connection reassembler; each is guarded by its own
// sequence bit (4.D.4).
func (e *Engine) handleCT(b *Burst, payload []byte) error {
	var t, id = e.Cluster.TBCAtSlot(b.Slot)
	if t == nil {
		return newProtocolError("mac", e.Cluster.name, errNoTbcForSlot{b.Slot})
	}

	if len(payload) < 1 {
		return newProtocolError("mac", e.Cluster.name, errShortAField{})
	}

	var flags = payload[0]
	var seqBit = flags&0x01 != 0
	var start = flags&0x02 != 0
	var fChannel = flags&0x04 != 0
	var dir = slotDirection(b.Slot)
	var data = payload[1:]

	var mbc = &t.MBC[dir]

	var fresh bool
	if fChannel {
		fresh = mbc.deliverFChannel(seqBit)
	} else {
		fresh = mbc.deliverCChannel(seqBit)
	}

	if !fresh {
		// Duplicate retransmission: discarded silently (4.D.4).
		return nil
	}

	var lsig uint16
	if start {
		if len(data) < 2 {
			return newProtocolError("mac", e.Cluster.name, errShortAField{})
		}

		lsig = uint16(data[0])<<8 | uint16(data[1])
		data = data[2:]
	}

	var sdu, done, err = mbc.lc.append(lsig, data)
	if err != nil {
		e.traceProtocolError(b.Slot, err)

		return err
	}

	if done {
		return e.deliverLcSDU(t, id, dir, sdu)
	}

	return nil
}

// pmidKey derives the ptArena lookup key for a bearer from its PMID,
// pending a true IPUI learned from a later NWK identity exchange (see
// handleMT's MacBearerConfirm case).
func pmidKey(pmid uint32) string {
	return fmt.Sprintf("pmid:%x", pmid)
}

type errNoTbcForSlot struct{ slot uint8 }

func (errNoTbcForSlot) Error() string { return "C_T tail on a slot with no established TBC" }

// processBField decrypts (if ciphered) and forwards a burst's B-field
// to the DLC U-plane reassembler, independent of whatever the A-field
// tail is doing this burst -- the two fields are separate channels
// multiplexed onto the same slot.
func (e *Engine) processBField(t *TBC, id TbcID, b *Burst) {
	if t.State != TbcEstablished && t.State != TbcCiphered {
		return
	}

	var plaintext = e.maybeDecryptBField(t, b)
	if plaintext == nil {
		return
	}

	e.deliverUPlane(t, id, slotDirection(b.Slot), plaintext)
}

// maybeDecryptBField applies 4.D.5's envelope: if the TBC is ciphered,
// XOR the B-field against the per-frame DSC keystream slice for this
// slot. Returns the plaintext (or the original bytes if unciphered).
func (e *Engine) maybeDecryptBField(t *TBC, b *Burst) []byte {
	if !t.Ciphered {
		return b.BField
	}

	var pt = e.Cluster.pts.get(t.PT)
	if pt == nil || !pt.HasDCK {
		// Section 7: tracked at MAC level but not decrypted.
		return nil
	}

	var iv = DSCIV(b.Multiframe, b.Frame)
	var key = dckToUint64(pt.DCK)
	var lo, hi = t.slotKeystreamRange(b.Slot)
	var window = DSCKeystream(iv, key, 90)

	copy(t.Keystream[:], window)

	var ks = t.Keystream[lo:hi]
	var n = len(b.BField)
	if n > len(ks) {
		n = len(ks)
	}

	var out = make([]byte, n)
	for i := range n {
		out[i] = b.BField[i] ^ ks[i]
	}

	return out
}

func dckToUint64(dck [dckLen]byte) uint64 {
	var v uint64
	for _, bb := range dck {
		v = v<<8 | uint64(bb)
	}

	return v
}

// ActivateCiphering implements 4.D.6: on a successful MM ciphering
// exchange, mark the TBC ciphered starting at the current frame.
func (e *Engine) ActivateCiphering(id TbcID) {
	var t = e.Cluster.tbcs.get(id)
	if t == nil {
		return
	}

	t.Ciphered = true
	t.State = TbcCiphered
}

func (e *Engine) releaseTbc(id TbcID, t *TBC) {
	t.State = TbcReleasing

	if timerID, ok := e.Cluster.idleTimers[id]; ok && e.Cluster.loop != nil {
		e.Cluster.loop.CancelTimer(timerID)
	}

	delete(e.Cluster.idleTimers, id)

	if pt := e.Cluster.pts.get(t.PT); pt != nil {
		pt.Link = NoTbc
		e.Cluster.RetirePTIfIdle(t.PT)
	}

	e.Cluster.FreeTBC(id)
	e.Cluster.state.Sink.Lifecyclef(e.Cluster.name, "TBC released slot=%d", t.Slot1)
}

// resetIdleTimer cancels and restarts the per-TBC silence timer on any
// traffic seen on its slot (4.D.3).
func (e *Engine) resetIdleTimer(id TbcID, t *TBC) {
	if e.Cluster.loop == nil {
		return
	}

	if old, ok := e.Cluster.idleTimers[id]; ok {
		e.Cluster.loop.CancelTimer(old)
	}

	e.Cluster.idleTimers[id] = e.Cluster.loop.RegisterTimer(idleTeardownBound, func() {
		var cur = e.Cluster.tbcs.get(id)
		if cur != nil {
			e.releaseTbc(id, cur)
		}
	})
}

func (e *Engine) traceProtocolError(slot uint8, err error) {
	if e.Cluster.state.Metrics != nil {
		e.Cluster.state.Metrics.IncProtocolError("mac", ErrProtocol.String())
	}

	e.Cluster.state.Sink.Emit(e.Cluster.name, LayerMAC, nil, "protocol error slot=%d: %v", slot, err)
}
