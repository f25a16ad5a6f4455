package dectmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAudioSink struct {
	frames [][]byte
}

func (s *recordingAudioSink) DecodeFrame(_ *AudioHandle, _ Direction, frame []byte) []int16 {
	s.frames = append(s.frames, append([]byte(nil), frame...))

	return nil
}

func TestDeliverUPlane_ChunksAtFrameSize(t *testing.T) {
	var engine, handle, _ = newTestEngine(t)

	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 0, AField: mtPayload(MacAccessRequest, 1, 1, false)})) //nolint:exhaustruct
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 0, AField: mtPayload(MacBearerConfirm, 1, 1, false)})) //nolint:exhaustruct

	var tbc, id = handle.TBCAtSlot(0)
	require.NotNil(t, tbc)

	var pt = handle.pts.get(tbc.PT)
	require.NotNil(t, pt)
	require.NotNil(t, pt.Audio, "the voice path is bound at establishment")

	var audioSink = &recordingAudioSink{} //nolint:exhaustruct
	engine.Audio = audioSink

	engine.deliverUPlane(tbc, id, DirFpToPt, make([]byte, uPlaneFrameSize-5))
	assert.Empty(t, audioSink.frames, "a partial buffer is not flushed yet")

	engine.deliverUPlane(tbc, id, DirFpToPt, make([]byte, 5))
	require.Len(t, audioSink.frames, 1)
	assert.Len(t, audioSink.frames[0], uPlaneFrameSize)

	engine.deliverUPlane(tbc, id, DirFpToPt, make([]byte, uPlaneFrameSize*2))
	assert.Len(t, audioSink.frames, 3, "two more full frames are flushed")
}

func TestDeliverUPlane_NoAudioSinkMeansNoHandle(t *testing.T) {
	var engine, handle, _ = newTestEngine(t)
	engine.Audio = nil

	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 0, AField: mtPayload(MacAccessRequest, 1, 1, false)})) //nolint:exhaustruct
	require.NoError(t, engine.ProcessBurst(&Burst{Slot: 0, AField: mtPayload(MacBearerConfirm, 1, 1, false)})) //nolint:exhaustruct

	var tbc, id = handle.TBCAtSlot(0)
	require.NotNil(t, tbc)

	var pt = handle.pts.get(tbc.PT)
	require.NotNil(t, pt)
	assert.Nil(t, pt.Audio, "no codec collaborator, no handle to feed")

	assert.NotPanics(t, func() {
		engine.deliverUPlane(tbc, id, DirFpToPt, make([]byte, uPlaneFrameSize))
	})
}
