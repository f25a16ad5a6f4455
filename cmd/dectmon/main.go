package main

/*------------------------------------------------------------------
 *
 * Purpose:	Command-line front end for the passive DECT monitor
 *		(section 1: "OUT OF SCOPE... the command-line front-end"
 *		is explicitly an external collaborator to the core
 *		engine; this file is that collaborator, wiring
 *		internal/dectmon's components together over the
 *		section-6 flag surface).
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kc9xyz/dectmon/internal/dectmon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[0], os.Args[1:]))
}

func run(prog string, args []string) int {
	var cfg, err = dectmon.ParseFlags(prog, args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}

		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	var sink, sinkErr = dectmon.NewTraceSink(os.Stdout, cfg.Dump, "")
	if sinkErr != nil {
		fmt.Fprintln(os.Stderr, sinkErr)

		return 1
	}

	defer func() { _ = sink.Close() }()

	var ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics = dectmon.NewMetrics(prometheus.NewRegistry())
	var state = dectmon.NewMonitorState(cfg.AuthPIN, sink, metrics)

	var loop, loopErr = dectmon.NewEpollEventLoop()
	if loopErr != nil {
		fmt.Fprintln(os.Stderr, loopErr)

		return 1
	}

	var driver = &dectmon.TracingCaptureDriver{Sink: sink}

	var nwk dectmon.NwkSink = &dectmon.TracingNwkSink{Sink: sink}

	if cfg.NwkTapPort > 0 {
		var tap, tapErr = dectmon.StartNwkTap(cfg.NwkTapPort)
		if tapErr != nil {
			fmt.Fprintln(os.Stderr, tapErr)

			return 1
		}

		defer func() { _ = tap.Close() }()
		tap.Serve(ctx)

		if annErr := dectmon.AnnounceNwkTap(ctx, sink, "dectmon", cfg.NwkTapPort); annErr != nil {
			// Announcement is best-effort; the tap itself is up.
			sink.Infof("NWK tap mDNS announcement failed: %v", annErr)
		}

		sink.Infof("NWK tap listening on %s", tap.Addr())

		nwk = dectmon.NwkFanout{nwk, tap}
	}

	var tuner *dectmon.Tuner

	if cfg.RigModel != 0 {
		var tunErr error

		tuner, tunErr = dectmon.OpenTuner(cfg.RigModel)
		if tunErr != nil {
			fmt.Fprintln(os.Stderr, tunErr)

			return 1
		}

		defer func() { _ = tuner.Close() }()
	}

	var audio = dectmon.DiscardAudioSink{}

	// One Engine per bound cluster; the embedding capture-driver
	// implementation is responsible for routing bursts observed on a
	// cluster's fd(s) to that cluster's Engine.ProcessBurst (section 1's
	// capture-driver boundary).
	var engines = make([]*dectmon.Engine, 0, len(cfg.Clusters))

	for _, cc := range cfg.Clusters {
		var handle, openErr = state.OpenCluster(cc.Name, cc.PIN)
		if openErr != nil {
			fmt.Fprintln(os.Stderr, openErr)

			return 1
		}

		handle.Bind(loop, driver)

		if tuner != nil {
			handle.AttachTuner(tuner)
		}

		engines = append(engines, dectmon.NewEngine(handle, nwk, audio))

		if cc.Scan {
			if scanErr := handle.Scan(); scanErr != nil {
				fmt.Fprintln(os.Stderr, scanErr)

				return 1
			}
		}
	}

	// Clusters whose capture hardware is a hotpluggable USB device get
	// a udev watcher: a re-attached device triggers a fresh scan, a
	// removal is surfaced in the lifecycle trace.
	var nodeToCluster = make(map[string]string)

	for _, cc := range cfg.Clusters {
		if cc.DevNode != "" {
			nodeToCluster[cc.DevNode] = cc.Name
		}
	}

	if len(nodeToCluster) > 0 {
		var watcher = dectmon.NewHotplugWatcher(nodeToCluster)

		go func() {
			var werr = watcher.Watch(ctx, func(ev dectmon.HotplugEvent) {
				var h = state.Clusters[ev.Cluster]
				if h == nil {
					return
				}

				switch ev.Action {
				case "add":
					sink.Lifecyclef(ev.Cluster, "capture device %s attached, scanning", ev.DevNode)

					if scanErr := h.Scan(); scanErr != nil {
						sink.Lifecyclef(ev.Cluster, "scan after hotplug failed: %v", scanErr)
					}
				case "remove":
					sink.Lifecyclef(ev.Cluster, "capture device %s removed", ev.DevNode)
				}
			})
			if werr != nil {
				sink.Infof("hotplug watcher stopped: %v", werr)
			}
		}()
	}

	if len(engines) > 0 {
		// The standalone driver registers no capture fds; without an
		// embedding binding the loop only services timers and signals.
		sink.Infof("monitoring %d cluster(s); burst ingress requires an embedding capture-driver binding", len(engines))
	}

	go func() {
		<-ctx.Done()
		loop.Stop()
	}()

	if runErr := loop.Run(); runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)

		return 1
	}

	return 0
}
