package dectmon

import (
	"context"

	"github.com/brutella/dnssd"
)

/*------------------------------------------------------------------
 *
 * Purpose:	mDNS/DNS-SD advertisement of the optional NWK-trace TCP
 *		tap (4.I), via github.com/brutella/dnssd -- the same
 *		pure-Go, no-system-daemon library and the same role the
 *		teacher gives it in src/dns_sd.go: announce a service so
 *		tooling finds it without typed-in addresses, generalized
 *		here from "KISS over TCP" to the NWK trace tap.
 *
 *------------------------------------------------------------------*/

// NwkTapServiceType is the DNS-SD service type advertised for the
// trace tap.
const NwkTapServiceType = "_dectmon-nwk._tcp"

// AnnounceNwkTap advertises a TCP tap of NWK-layer trace records (4.I)
// on the given port via mDNS, so a trace-following client doesn't need
// a typed-in host:port. It runs the responder in a background
// goroutine and returns once the service is registered; cancel ctx to
// stop announcing.
func AnnounceNwkTap(ctx context.Context, sink *TraceSink, name string, port int) error {
	var cfg = dnssd.Config{Name: name, Type: NwkTapServiceType, Port: port} //nolint:exhaustruct

	var svc, err = dnssd.NewService(cfg)
	if err != nil {
		return &MonitorError{Kind: ErrFatalResource, Layer: "discovery", Err: err} //nolint:exhaustruct
	}

	var responder, rerr = dnssd.NewResponder()
	if rerr != nil {
		return &MonitorError{Kind: ErrFatalResource, Layer: "discovery", Err: rerr} //nolint:exhaustruct
	}

	if _, err := responder.Add(svc); err != nil {
		return &MonitorError{Kind: ErrFatalResource, Layer: "discovery", Err: err} //nolint:exhaustruct
	}

	go func() {
		if err := responder.Respond(ctx); err != nil && sink != nil {
			sink.logger.Warn("DNS-SD responder stopped", "err", err)
		}
	}()

	return nil
}
