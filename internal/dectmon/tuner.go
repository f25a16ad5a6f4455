package dectmon

import "github.com/xylo04/goHamlib"

/*------------------------------------------------------------------
 *
 * Purpose:	Optional hamlib-controlled frequency-scan assist for
 *		4.G's Scan state, via github.com/xylo04/goHamlib (teacher
 *		go.mod dependency, SPEC_FULL 10). Hamlib's rig-control
 *		abstraction matches "issue a scan request" across the
 *		DECT 1880-1900MHz band for capture hardware that is an
 *		SDR front end tuned through hamlib rather than a fixed
 *		DECT-specific dongle; entirely optional, nil-safe.
 *
 *------------------------------------------------------------------*/

// DectBandStartHz/DectBandEndHz bound the European DECT band; a
// hamlib-controlled front end is stepped across this range during
// scanning.
const (
	DectBandStartHz = 1_881_792_000
	DectBandEndHz   = 1_897_344_000
	dectChannelStep = 1_728_000

	// dectChannelCount is the number of RF carriers in the band (0..9).
	dectChannelCount = 10
)

// Tuner wraps a hamlib rig used only to step a hamlib-controlled
// capture front end across the DECT band while a cluster is scanning
// (4.G); it never transmits (Non-goal).
type Tuner struct {
	rig *goHamlib.Rig
}

// OpenTuner initializes and opens a hamlib rig by model number. A nil
// *Tuner (and non-nil error) is returned on failure; callers that have
// no hamlib-controlled front end simply never call this.
func OpenTuner(model int) (*Tuner, error) {
	var rig = &goHamlib.Rig{} //nolint:exhaustruct

	if err := rig.Init(model); err != nil {
		return nil, &MonitorError{Kind: ErrFatalResource, Layer: "tuner", Err: err} //nolint:exhaustruct
	}

	if err := rig.Open(); err != nil {
		return nil, &MonitorError{Kind: ErrFatalResource, Layer: "tuner", Err: err} //nolint:exhaustruct
	}

	return &Tuner{rig: rig}, nil
}

// StepChannel tunes the rig to DECT RF channel n (0..9, 1728kHz
// spacing from DectBandStartHz), used by 4.G's Scan state to sweep
// the band looking for a MAC_ME_INFO-ind.
func (t *Tuner) StepChannel(n int) error {
	var freq = float64(DectBandStartHz + n*dectChannelStep)

	if err := t.rig.SetFreq(goHamlib.VFOCurrent, freq); err != nil {
		return &MonitorError{Kind: ErrFatalResource, Layer: "tuner", Err: err} //nolint:exhaustruct
	}

	return nil
}

// Close releases the hamlib rig handle.
func (t *Tuner) Close() error {
	return t.rig.Close()
}
