package dectmon

/*------------------------------------------------------------------
 *
 * Purpose:	A trace-only CaptureDriver (section 1: the radio capture
 *		driver is an external collaborator, out of scope for
 *		this repo). Standalone runs with no hardware binding
 *		wire this in so --scan has somewhere to go; a real
 *		capture-cluster binding (USB DECT dongle, SDR front end)
 *		implements the same CaptureDriver interface and is
 *		supplied by the embedding application.
 *
 *------------------------------------------------------------------*/

// TracingCaptureDriver is a CaptureDriver that only records the scan
// and confirm requests it's asked to issue, for use where no real
// capture hardware binding is present.
type TracingCaptureDriver struct {
	Sink *TraceSink
}

func (d *TracingCaptureDriver) RequestScan(cluster string) error {
	if d.Sink != nil {
		d.Sink.Lifecyclef(cluster, "scan requested (no capture driver bound)")
	}

	return nil
}

func (d *TracingCaptureDriver) RequestConfirm(cluster string, pari PARI) error {
	if d.Sink != nil {
		d.Sink.Lifecyclef(cluster, "confirm requested EMC: %.4x FPN: %.5x (no capture driver bound)", pari.EMC, pari.FPN)
	}

	return nil
}
