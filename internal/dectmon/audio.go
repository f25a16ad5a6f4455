package dectmon

/*------------------------------------------------------------------
 *
 * Purpose:	Audio Handle (section 3 data model): two G.726 codec
 *		states, one per direction, plus the per-direction
 *		pending buffers dlc.go's deliverUPlane appends into
 *		before handing a full frame to the codec.
 *
 * The ADPCM (G.726) codec itself is an external collaborator (section
 * 1: "OUT OF SCOPE... the ADPCM codec (pure sample decoder)"). This
 * file only carries the per-direction state threaded across calls and
 * the AudioSink boundary interface the U-plane reassembler calls into;
 * it never touches a sound card (Non-goal: "real-time audio
 * playback").
 *
 *------------------------------------------------------------------*/

// G726State is the opaque per-direction ADPCM decoder state handed to
// the external codec collaborator between calls. Its fields are owned
// entirely by that collaborator; this package only threads it through
// by value.
type G726State struct {
	// Predictor/step-size state is the external codec's concern; this
	// package carries it but never reads or writes it directly.
	Reserved [32]byte
}

// AudioHandle is the section-3 "Audio Handle" entity: two codec states
// and two pending U-plane buffers, indexed by Direction.
type AudioHandle struct {
	codec   [2]G726State
	pending [2][]byte
}

// NewAudioHandle allocates a fresh, silent audio handle for a newly
// observed PT.
func NewAudioHandle() *AudioHandle {
	return &AudioHandle{} //nolint:exhaustruct
}

// AudioSink is the external ADPCM decoder contract 4.E's U-plane
// sub-function calls into once it has accumulated a full
// uPlaneFrameSize chunk of post-decryption B-field bytes. Implementers
// own codec[dir] across calls; this package never inspects the
// returned samples beyond handing them onward.
type AudioSink interface {
	DecodeFrame(ah *AudioHandle, dir Direction, frame []byte) []int16
}

// DiscardAudioSink is a no-op AudioSink for deployments with no
// external codec wired in yet -- decoding is simply skipped, matching
// section 7's "Ciphered bearers whose DCK cannot be derived... are not
// fed to the audio... pipeline" for the case where there is nowhere to
// feed a successfully decrypted one either.
type DiscardAudioSink struct{}

func (DiscardAudioSink) DecodeFrame(_ *AudioHandle, _ Direction, _ []byte) []int16 { return nil }
