package dectmon

import "encoding/binary"

/*------------------------------------------------------------------
 *
 * Purpose:	4.F MM side-channel: snoops MM-layer key-allocation,
 *		authentication and ciphering exchanges on completed NWK
 *		SDUs, feeding derived keys back to 4.C/4.D.
 *
 * Wire framing note: as with mac.go's A-field tails, the exact NWK MM
 * information-element encoding is ETSI-licensed material the distilled
 * spec abstracts away ("observes NWK MM messages"). This engine defines
 * its own byte-level MM message framing carrying the same fields
 * (auth-type, RS, RAND_F, RES) the rest of 4.F depends on; see
 * DESIGN.md.
 *
 *------------------------------------------------------------------*/

// MmMessageKind classifies a decoded NWK MM message.
type MmMessageKind uint8

const (
	MmMsgKeyAllocate MmMessageKind = iota
	MmMsgAuthReply                 // PT -> FP, response to KEY-ALLOCATE
	MmMsgAuthRequest
	MmMsgAuthRes // PT -> FP, response to AUTHENTICATION-REQUEST
	MmMsgCipherRequest
	MmMsgCipherSuggest
	MmMsgCipherReject
)

// MmEngine implements 4.F, bound to the MAC engine whose TBCs it
// activates ciphering on and whose cluster it traces through.
type MmEngine struct {
	mac *Engine
}

// NewMmEngine builds an MM side-channel bound to a MAC engine.
func NewMmEngine(e *Engine) *MmEngine {
	return &MmEngine{mac: e}
}

// Observe inspects a completed NWK SDU (delivered alongside the
// regular NWK decoder dispatch in dlc.go's deliverLcSDU) for a
// recognized MM message and drives the PT's procedure state machine.
// Anything it doesn't recognize is left entirely alone; MM messages
// share the NWK SDU stream with every other NWK protocol discipline,
// most of which is the external decoder's concern (section 1).
func (m *MmEngine) Observe(t *TBC, id TbcID, dir Direction, sdu []byte) {
	if len(sdu) < 1 || sdu[0] != nwkMmProtocolDiscriminator {
		return
	}

	if len(sdu) < 2 {
		return
	}

	var kind = MmMessageKind(sdu[1])
	var payload = sdu[2:]

	var pt = m.mac.Cluster.pts.get(t.PT)
	if pt == nil {
		return
	}

	switch kind {
	case MmMsgKeyAllocate:
		m.onKeyAllocate(pt, dir, payload)
	case MmMsgAuthReply:
		m.onAuthReply(pt, dir, payload)
	case MmMsgAuthRequest:
		m.onAuthRequest(pt, dir, payload)
	case MmMsgAuthRes:
		m.onAuthRes(pt, dir, payload)
	case MmMsgCipherRequest, MmMsgCipherSuggest:
		m.onCipherRequest(t, id, pt)
	case MmMsgCipherReject:
		pt.EndProcedure()
	default:
		m.traceProtocolError(errUnrecognizedMm{byte(kind), pt.Procedure.Kind})
	}

	pt.LastMsg = byte(kind)
}

// nwkMmProtocolDiscriminator is the first byte of any NWK SDU carrying
// an MM message, distinguishing it from every other NWK protocol
// discipline multiplexed on the same Lc stream.
const nwkMmProtocolDiscriminator = 0x03

type errUnrecognizedMm struct {
	kind byte
	have MmProcedureKind
}

func (e errUnrecognizedMm) Error() string {
	return "unexpected MM message given the current procedure"
}

// onKeyAllocate handles FP -> PT KEY-ALLOCATE: payload is RS(8) ||
// RAND_F(8). Starts the KeyAllocation procedure (4.F.1); rejected if
// another procedure is already in flight on this PT (4.F's
// single-active-procedure rule), recorded as a protocol error.
func (m *MmEngine) onKeyAllocate(pt *PortablePart, dir Direction, payload []byte) {
	if dir != DirFpToPt || len(payload) < 16 {
		m.traceProtocolError(errMalformedMm{"KEY-ALLOCATE"})

		return
	}

	var rs = binary.BigEndian.Uint64(payload[0:8])
	var randF = binary.BigEndian.Uint64(payload[8:16])

	if !pt.BeginProcedure(MmProcedure{Kind: MmKeyAllocation, RS: rs, RandF: randF}) { //nolint:exhaustruct
		m.traceProtocolError(errProcedureOverlap{MmKeyAllocation, pt.Procedure.Kind})
	}
}

type errMalformedMm struct{ msg string }

func (e errMalformedMm) Error() string { return "malformed MM message: " + e.msg }

type errProcedureOverlap struct {
	want, have MmProcedureKind
}

func (e errProcedureOverlap) Error() string {
	return "MM procedure " + e.want.String() + " requested while " + e.have.String() + " is active"
}

// onAuthReply handles PT -> FP AUTHENTICATION-REPLY (the reply to
// KEY-ALLOCATE): payload is RES(4). Derives UAK from the cluster's
// configured PIN and RS, verifies RES1 == RES, and stores UAK on match
// (4.F.1) or discards it and records a crypto mismatch (section 7).
func (m *MmEngine) onAuthReply(pt *PortablePart, dir Direction, payload []byte) {
	if dir != DirPtToFp || pt.Procedure.Kind != MmKeyAllocation || len(payload) < res1Len {
		m.traceProtocolError(errMalformedMm{"AUTHENTICATION-REPLY"})

		return
	}

	var proc = pt.Procedure
	var uak = DeriveUAK(m.mac.Cluster.AuthPIN(), proc.RS)
	var res1 = ComputeRES1(uak, proc.RS, proc.RandF)

	if res1 != [res1Len]byte(payload[:res1Len]) {
		m.traceCryptoMismatch(pt)
		pt.DiscardUAK()

		return
	}

	pt.UAK = uak
	pt.HasUAK = true
	pt.EndProcedure()

	m.mac.Cluster.state.Sink.Clusterf(m.mac.Cluster.name, LayerNWK, "key allocation succeeded ipui=%s", pt.IPUI)
}

// onAuthRequest handles FP -> PT AUTHENTICATION-REQUEST: payload is
// auth-type(1) || RS(8) || RAND_F(8). Starts the Authentication
// procedure (4.F.2), awaiting the PT's RES.
func (m *MmEngine) onAuthRequest(pt *PortablePart, dir Direction, payload []byte) {
	if dir != DirFpToPt || len(payload) < 17 {
		m.traceProtocolError(errMalformedMm{"AUTHENTICATION-REQUEST"})

		return
	}

	var authTy = payload[0]
	var rs = binary.BigEndian.Uint64(payload[1:9])
	var randF = binary.BigEndian.Uint64(payload[9:17])

	if !pt.BeginProcedure(MmProcedure{Kind: MmAuthentication, RS: rs, RandF: randF, AuthTy: authTy}) { //nolint:exhaustruct
		m.traceProtocolError(errProcedureOverlap{MmAuthentication, pt.Procedure.Kind})
	}
}

// onAuthRes handles PT -> FP's RES reply to AUTHENTICATION-REQUEST:
// payload is RES(4). With UAK present, derives RES1 and DCK (4.F.2);
// a mismatch discards UAK and is recorded as a crypto mismatch
// (section 7), after which bearers from this PT stay undecryptable
// until the next successful key-allocation.
func (m *MmEngine) onAuthRes(pt *PortablePart, dir Direction, payload []byte) {
	if dir != DirPtToFp || pt.Procedure.Kind != MmAuthentication || len(payload) < res1Len {
		m.traceProtocolError(errMalformedMm{"AUTHENTICATION (RES)"})

		return
	}

	if !pt.HasUAK {
		// No UAK on record; derivation cannot proceed. Non-fatal:
		// tracked at MAC level but never decryptable (section 7).
		m.traceProtocolError(errMalformedMm{"AUTHENTICATION (RES) with no UAK on record"})
		pt.EndProcedure()

		return
	}

	var proc = pt.Procedure
	var res1 = ComputeRES1(pt.UAK, proc.RS, proc.RandF)

	if res1 != [res1Len]byte(payload[:res1Len]) {
		m.traceCryptoMismatch(pt)
		pt.DiscardUAK()

		return
	}

	var dck = DeriveDCK(pt.UAK, proc.RS, proc.RandF)
	pt.DCK = dck
	pt.HasDCK = true
	pt.EndProcedure()

	if dck == ([dckLen]byte{}) {
		// SPEC_FULL 11: default all-zero DCK, flagged but not a
		// different code path.
		m.mac.Cluster.state.Sink.Emit(m.mac.Cluster.name, LayerNWK, nil, "WARN default (all-zero) DCK derived ipui=%s", pt.IPUI)
	} else {
		m.mac.Cluster.state.Sink.Clusterf(m.mac.Cluster.name, LayerNWK, "authentication succeeded ipui=%s", pt.IPUI)
	}
}

// onCipherRequest handles CIPHER-REQUEST/CIPHER-SUGGEST (4.F.3,
// 4.D.6): if the PT has a derived DCK, activates ciphering on its
// current TBC starting at the current frame; otherwise the exchange
// is recorded as a protocol error and ciphering does not activate
// (section 7: "their B-field is not decrypted").
func (m *MmEngine) onCipherRequest(t *TBC, id TbcID, pt *PortablePart) {
	if !pt.HasDCK {
		m.traceProtocolError(errMalformedMm{"CIPHER-REQUEST with no DCK on record"})

		return
	}

	if !pt.BeginProcedure(MmProcedure{Kind: MmCiphering, DCKPending: pt.DCK}) { //nolint:exhaustruct
		m.traceProtocolError(errProcedureOverlap{MmCiphering, pt.Procedure.Kind})

		return
	}

	m.mac.ActivateCiphering(id)
	pt.EndProcedure()

	m.mac.Cluster.state.Sink.Lifecyclef(m.mac.Cluster.name, "ciphering activated slot=%d ipui=%s", t.Slot1, pt.IPUI)
}

func (m *MmEngine) traceProtocolError(err error) {
	if m.mac.Cluster.state.Metrics != nil {
		m.mac.Cluster.state.Metrics.IncProtocolError("mm", ErrProtocol.String())
	}

	m.mac.Cluster.state.Sink.Emit(m.mac.Cluster.name, LayerNWK, nil, "MM protocol error: %v", err)
}

func (m *MmEngine) traceCryptoMismatch(pt *PortablePart) {
	if m.mac.Cluster.state.Metrics != nil {
		m.mac.Cluster.state.Metrics.IncProtocolError("mm", ErrCryptoMismatch.String())
	}

	m.mac.Cluster.state.Sink.Emit(m.mac.Cluster.name, LayerNWK, nil, "RES1 mismatch ipui=%s, UAK discarded", pt.IPUI)
}
