package dectmon

/*------------------------------------------------------------------
 *
 * Purpose:	4.E DLC layer's two sub-functions: delivering completed
 *		Lc SDUs to the NWK collaborator (the C-plane half, whose
 *		reassembly itself lives in tbc.go's lcReassembler since
 *		it's per-MBC state), and U-plane (voice) reassembly into
 *		audio-codec-sized chunks.
 *
 *------------------------------------------------------------------*/

// uPlaneFrameSize is the number of post-decryption B-field bytes
// handed to the audio codec per chunk (4.E: "in frame-sized chunks").
// A DECT B-field on a full-slot bearer carries 320 bits = 40 bytes of
// user data per slot per frame; that is the codec's natural unit.
const uPlaneFrameSize = 40

// deliverLcSDU is the DLC C-plane half of 4.E: a completed Lc SDU is
// handed to the NWK decoder collaborator, tagged with direction and
// the PT identity, then also inspected by the MM side-channel (4.F)
// since MM messages ride inside NWK SDUs on this same link.
func (e *Engine) deliverLcSDU(t *TBC, id TbcID, dir Direction, sdu []byte) error {
	var pt = e.Cluster.pts.get(t.PT)

	e.Cluster.state.Sink.Emit(e.Cluster.name, LayerDLC, sdu, "Lc SDU len=%d dir=%d", len(sdu), dir)

	if e.Nwk != nil {
		var ipui = ""
		if pt != nil {
			ipui = pt.IPUI
		}

		e.Nwk.Deliver(e.Cluster.name, ipui, dir, sdu)
	}

	if e.Mm != nil {
		e.Mm.Observe(t, id, dir, sdu)
	}

	return nil
}

// deliverUPlane appends decrypted B-field bytes to the per-direction
// U-plane buffer and flushes full uPlaneFrameSize chunks to the audio
// codec collaborator (4.E's second sub-function).
func (e *Engine) deliverUPlane(t *TBC, id TbcID, dir Direction, data []byte) {
	var pt = e.Cluster.pts.get(t.PT)
	if pt == nil || pt.Audio == nil {
		return
	}

	pt.Audio.pending[dir] = append(pt.Audio.pending[dir], data...)

	for len(pt.Audio.pending[dir]) >= uPlaneFrameSize {
		var chunk = pt.Audio.pending[dir][:uPlaneFrameSize]
		pt.Audio.pending[dir] = pt.Audio.pending[dir][uPlaneFrameSize:]

		if e.Audio != nil {
			e.Audio.DecodeFrame(pt.Audio, dir, chunk)
		}
	}
}
