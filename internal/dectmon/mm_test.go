package dectmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lcSegment(seqBit bool, lsig uint16, data []byte) []byte {
	var flags = byte(0b10) // start-of-assembly, single segment for these tests
	if seqBit {
		flags |= 0b01
	}

	var out = []byte{byte(TailCT), flags, byte(lsig >> 8), byte(lsig)}

	return append(out, data...)
}

func mmMessage(kind MmMessageKind, fields ...[]byte) []byte {
	var out = []byte{nwkMmProtocolDiscriminator, byte(kind)}

	for _, f := range fields {
		out = append(out, f...)
	}

	return out
}

func u64be(v uint64) []byte {
	return []byte{byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32), byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func establishDuplexTBC(t *testing.T, engine *Engine, slot uint8) {
	t.Helper()

	require.NoError(t, engine.ProcessBurst(&Burst{Slot: slot, AField: mtPayload(MacAccessRequest, 0x10, 0x20, true)})) //nolint:exhaustruct
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: slot, AField: mtPayload(MacBearerConfirm, 0x10, 0x20, true)})) //nolint:exhaustruct
}

func TestMM_KeyAllocationSuccess(t *testing.T) {
	var engine, handle, _ = newTestEngine(t)

	establishDuplexTBC(t, engine, 2) // pairs with 14

	var rs = uint64(0x1122334455667788)
	var randF = uint64(0x99aabbccddeeff00)

	var keyAlloc = mmMessage(MmMsgKeyAllocate, u64be(rs), u64be(randF))
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 2, AField: lcSegment(true, uint16(len(keyAlloc)), keyAlloc)})) //nolint:exhaustruct

	var uak = DeriveUAK(handle.AuthPIN(), rs)
	var res1 = ComputeRES1(uak, rs, randF)

	var authReply = mmMessage(MmMsgAuthReply, res1[:])
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 14, AField: lcSegment(true, uint16(len(authReply)), authReply)})) //nolint:exhaustruct

	var tbc, _ = handle.TBCAtSlot(2)
	require.NotNil(t, tbc)

	var pt = handle.pts.get(tbc.PT)
	require.NotNil(t, pt)
	assert.True(t, pt.HasUAK)
	assert.Equal(t, uak, pt.UAK)
	assert.Equal(t, MmNone, pt.Procedure.Kind, "the procedure must end once the exchange completes")
}

func TestMM_KeyAllocationMismatchDiscardsUAK(t *testing.T) {
	var engine, handle, _ = newTestEngine(t)

	establishDuplexTBC(t, engine, 2)

	var rs = uint64(1)
	var randF = uint64(2)

	var keyAlloc = mmMessage(MmMsgKeyAllocate, u64be(rs), u64be(randF))
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 2, AField: lcSegment(true, uint16(len(keyAlloc)), keyAlloc)})) //nolint:exhaustruct

	var wrongRes = [res1Len]byte{0xff, 0xff, 0xff, 0xff}
	var authReply = mmMessage(MmMsgAuthReply, wrongRes[:])
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 14, AField: lcSegment(true, uint16(len(authReply)), authReply)})) //nolint:exhaustruct

	var tbc, _ = handle.TBCAtSlot(2)
	var pt = handle.pts.get(tbc.PT)
	require.NotNil(t, pt)

	assert.False(t, pt.HasUAK, "a RES1 mismatch must discard any UAK")
	assert.Equal(t, MmNone, pt.Procedure.Kind)
}

func TestMM_AuthenticationDerivesDCKAndActivatesCiphering(t *testing.T) {
	var engine, handle, _ = newTestEngine(t)

	establishDuplexTBC(t, engine, 2)

	var rs = uint64(0xaaaaaaaaaaaaaaaa)
	var randF = uint64(0xbbbbbbbbbbbbbbbb)

	// Key allocation first, to get a UAK on record.
	var keyAlloc = mmMessage(MmMsgKeyAllocate, u64be(rs), u64be(randF))
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 2, AField: lcSegment(true, uint16(len(keyAlloc)), keyAlloc)})) //nolint:exhaustruct

	var uak = DeriveUAK(handle.AuthPIN(), rs)
	var keyAllocRes1 = ComputeRES1(uak, rs, randF)
	var authReply = mmMessage(MmMsgAuthReply, keyAllocRes1[:])
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 14, AField: lcSegment(true, uint16(len(authReply)), authReply)})) //nolint:exhaustruct

	// Now a fresh AUTHENTICATION-REQUEST/RES exchange derives DCK.
	var authRs = uint64(0x1)
	var authRandF = uint64(0x2)
	var authReq = mmMessage(MmMsgAuthRequest, []byte{0x07}, u64be(authRs), u64be(authRandF))
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 2, AField: lcSegment(false, uint16(len(authReq)), authReq)})) //nolint:exhaustruct

	var res1 = ComputeRES1(uak, authRs, authRandF)
	var authRes = mmMessage(MmMsgAuthRes, res1[:])
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 14, AField: lcSegment(false, uint16(len(authRes)), authRes)})) //nolint:exhaustruct

	var tbc, id = handle.TBCAtSlot(2)
	var pt = handle.pts.get(tbc.PT)
	require.NotNil(t, pt)
	assert.True(t, pt.HasDCK)

	var expectedDCK = DeriveDCK(uak, authRs, authRandF)
	assert.Equal(t, expectedDCK, pt.DCK)

	// Section 4.D.6: CIPHER-REQUEST with a valid DCK present activates
	// ciphering on the TBC.
	var cipherReq = mmMessage(MmMsgCipherRequest)
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 2, AField: lcSegment(true, uint16(len(cipherReq)), cipherReq)})) //nolint:exhaustruct

	var reTbc = handle.tbcs.get(id)
	require.NotNil(t, reTbc)
	assert.True(t, reTbc.Ciphered)
	assert.Equal(t, TbcCiphered, reTbc.State)
}

func TestMM_CipherRequestWithoutDCKDoesNotActivate(t *testing.T) {
	var engine, handle, _ = newTestEngine(t)

	establishDuplexTBC(t, engine, 2)

	// Invariant 2 of section 3: ciphered implies a valid DCK exists on
	// the associated PT. With no DCK on record the exchange is a
	// recorded protocol error and ciphering never activates.
	var cipherReq = mmMessage(MmMsgCipherRequest)
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 2, AField: lcSegment(true, uint16(len(cipherReq)), cipherReq)})) //nolint:exhaustruct

	var tbc, _ = handle.TBCAtSlot(2)
	require.NotNil(t, tbc)
	assert.False(t, tbc.Ciphered)
	assert.Equal(t, TbcEstablished, tbc.State)
}

func TestMM_ProcedureOverlapRejected(t *testing.T) {
	var engine, handle, _ = newTestEngine(t)

	establishDuplexTBC(t, engine, 2)

	var keyAlloc = mmMessage(MmMsgKeyAllocate, u64be(1), u64be(2))
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 2, AField: lcSegment(true, uint16(len(keyAlloc)), keyAlloc)})) //nolint:exhaustruct

	var tbc, _ = handle.TBCAtSlot(2)
	var pt = handle.pts.get(tbc.PT)
	require.NotNil(t, pt)
	assert.Equal(t, MmKeyAllocation, pt.Procedure.Kind)

	// A second KEY-ALLOCATE while one is already in flight must not
	// clobber the first (4.F: only one active MM procedure per PT).
	var second = mmMessage(MmMsgKeyAllocate, u64be(99), u64be(100))
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 2, AField: lcSegment(false, uint16(len(second)), second)})) //nolint:exhaustruct

	assert.Equal(t, uint64(1), pt.Procedure.RS, "the original in-flight procedure's RS must be untouched")
}
