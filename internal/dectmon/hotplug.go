package dectmon

import (
	"context"

	"github.com/jochenvg/go-udev"
)

/*------------------------------------------------------------------
 *
 * Purpose:	USB capture-cluster hotplug detection via
 *		github.com/jochenvg/go-udev (teacher go.mod dependency,
 *		SPEC_FULL 10). A raw-frame ingress device (4.A) is
 *		realistically a USB DECT dongle; this watches udev for
 *		it appearing/disappearing and reports each event to the
 *		caller (cmd/dectmon re-scans the cluster on appear and
 *		traces a disappearance) rather than requiring the
 *		operator to notice and restart the process.
 *
 *------------------------------------------------------------------*/

// HotplugEvent is one udev add/remove notification for a capture
// device, identified by its kernel device node (e.g. /dev/dect0).
type HotplugEvent struct {
	Action  string // "add" or "remove"
	DevNode string
	Cluster string // the configured cluster name bound to this DevNode, if any
}

// HotplugWatcher watches udev for DECT capture-cluster USB devices
// appearing and disappearing, mapping device nodes to configured
// cluster names via a caller-supplied lookup.
type HotplugWatcher struct {
	udev          udev.Udev
	nodeToCluster map[string]string
}

// NewHotplugWatcher builds a watcher over the given devnode->cluster
// mapping (normally populated from Config.Clusters plus an
// operator-provided devnode association; this repo treats that
// association as configuration, not something it discovers).
func NewHotplugWatcher(nodeToCluster map[string]string) *HotplugWatcher {
	return &HotplugWatcher{udev: udev.Udev{}, nodeToCluster: nodeToCluster} //nolint:exhaustruct
}

// Watch subscribes to udev's "usb" subsystem and delivers add/remove
// events for recognized capture devices to onEvent until ctx is
// cancelled. Devices with no configured cluster mapping are ignored.
func (w *HotplugWatcher) Watch(ctx context.Context, onEvent func(HotplugEvent)) error {
	var mon = w.udev.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("usb"); err != nil {
		return &MonitorError{Kind: ErrFatalResource, Layer: "hotplug", Err: err} //nolint:exhaustruct
	}

	var deviceCh, errCh, err = mon.DeviceChan(ctx)
	if err != nil {
		return &MonitorError{Kind: ErrFatalResource, Layer: "hotplug", Err: err} //nolint:exhaustruct
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil {
				return &MonitorError{Kind: ErrFatalResource, Layer: "hotplug", Err: err} //nolint:exhaustruct
			}
		case d, ok := <-deviceCh:
			if !ok {
				return nil
			}

			var node = d.Devnode()

			var cluster, known = w.nodeToCluster[node]
			if !known {
				continue
			}

			onEvent(HotplugEvent{Action: d.Action(), DevNode: node, Cluster: cluster})
		}
	}
}
