package dectmon

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

/*------------------------------------------------------------------
 *
 * Purpose:	9.3 Configuration: the section-6 CLI surface via
 *		github.com/spf13/pflag (the teacher's own CLI library,
 *		cmd/direwolf), plus an optional YAML cluster-roster file
 *		(gopkg.in/yaml.v3, as the teacher's config.go and
 *		barnettlynn-nfctools/sdmconfig both do) so a fleet of
 *		clusters doesn't need 16 repeated --cluster= flags typed
 *		out. See ParseFlags for how the two are merged.
 *
 *------------------------------------------------------------------*/

// MaxClusters is section 6's "repeatable, up to 16" bound on
// --cluster.
const MaxClusters = 16

// DefaultAuthPIN is section 6's documented default for --auth-pin.
const DefaultAuthPIN = "0000"

// Config is the fully-resolved configuration for one monitor process:
// CLI flags merged with an optional roster file (see ParseFlags).
type Config struct {
	Clusters   []ClusterConfig
	Scan       bool
	Dump       DumpOpts
	AuthPIN    string
	NwkTapPort int
	RigModel   int
}

// ClusterConfig is one bound capture cluster: its name, whether it
// should scan on start, its PIN override (falling back to the
// process-wide --auth-pin when empty), and the udev device node its
// capture hardware appears as, if hotplug tracking is wanted.
type ClusterConfig struct {
	Name    string
	Scan    bool
	PIN     string
	DevNode string
}

// ClusterRoster is the optional YAML file format for a fleet of
// clusters (9.3), keeping the CLI surface of section 6 usable without
// typing --cluster= sixteen times.
type ClusterRoster struct {
	Clusters []RosterEntry `yaml:"clusters"`
}

// RosterEntry is one roster-file cluster: name, scan-on-start, and an
// optional per-cluster PIN override.
type RosterEntry struct {
	Name    string `yaml:"name"`
	Scan    bool   `yaml:"scan"`
	PIN     string `yaml:"pin,omitempty"`
	DevNode string `yaml:"devnode,omitempty"`
}

// LoadRoster reads and parses a YAML cluster-roster file. A
// configuration error (section 7) if the file cannot be read or
// parsed.
func LoadRoster(path string) (*ClusterRoster, error) {
	var data, err = os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, &MonitorError{Kind: ErrFatalConfig, Layer: "config", Err: fmt.Errorf("reading roster file %s: %w", path, err)} //nolint:exhaustruct
	}

	var roster ClusterRoster

	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, &MonitorError{Kind: ErrFatalConfig, Layer: "config", Err: fmt.Errorf("parsing roster file %s: %w", path, err)} //nolint:exhaustruct
	}

	return &roster, nil
}

// ParseFlags parses the section-6 CLI surface from args (normally
// os.Args[1:]) using its own pflag.FlagSet, so repeated calls in tests
// don't collide with the package-level pflag.CommandLine. A roster
// file, if --roster is given, is loaded and merged in: CLI --cluster
// flags are appended after roster entries, --scan turns scanning on for
// every cluster, and CLI --auth-pin applies to a roster entry only when
// that entry left PIN empty.
func ParseFlags(prog string, args []string) (*Config, error) {
	var fs = pflag.NewFlagSet(prog, pflag.ContinueOnError)

	var clusters = fs.StringArray("cluster", nil, "bind to a named capture cluster (repeatable, up to 16)")
	var scan = fs.Bool("scan", false, "initiate scanning on each bound cluster")
	var dumpMAC = fs.String("dump-mac", "no", "trace MAC-layer records: yes|no")
	var dumpDLC = fs.String("dump-dlc", "no", "trace DLC-layer records: yes|no")
	var dumpNWK = fs.String("dump-nwk", "yes", "trace NWK-layer records: yes|no")
	var authPin = fs.String("auth-pin", DefaultAuthPIN, "ASCII digits used as the key-allocation PIN")
	var rosterPath = fs.String("roster", "", "optional YAML file listing additional clusters")
	var nwkTapPort = fs.Int("nwk-tap-port", 0, "TCP port serving NWK trace records, announced via mDNS (0 disables)")
	var rigModel = fs.Int("rig-model", 0, "hamlib rig model controlling the capture front end's band sweep (0 disables)")

	if err := fs.Parse(args); err != nil {
		return nil, &MonitorError{Kind: ErrFatalConfig, Layer: "config", Err: err} //nolint:exhaustruct
	}

	if len(*clusters) > MaxClusters {
		return nil, &MonitorError{Kind: ErrFatalConfig, Layer: "config", Err: fmt.Errorf("%w: got %d, max %d", errTooManyClusters, len(*clusters), MaxClusters)} //nolint:exhaustruct
	}

	var dumpMacBool, err = parseYesNo("dump-mac", *dumpMAC)
	if err != nil {
		return nil, err
	}

	var dumpDlcBool, err2 = parseYesNo("dump-dlc", *dumpDLC)
	if err2 != nil {
		return nil, err2
	}

	var dumpNwkBool, err3 = parseYesNo("dump-nwk", *dumpNWK)
	if err3 != nil {
		return nil, err3
	}

	var cfg = &Config{
		Dump:       DumpOpts{MAC: dumpMacBool, DLC: dumpDlcBool, NWK: dumpNwkBool},
		Scan:       *scan,
		AuthPIN:    *authPin,
		NwkTapPort: *nwkTapPort,
		RigModel:   *rigModel,
	}

	if *rosterPath != "" {
		var roster, rerr = LoadRoster(*rosterPath)
		if rerr != nil {
			return nil, rerr
		}

		for _, e := range roster.Clusters {
			cfg.Clusters = append(cfg.Clusters, ClusterConfig{Name: e.Name, Scan: e.Scan || *scan, PIN: e.PIN, DevNode: e.DevNode})
		}
	}

	for _, name := range *clusters {
		cfg.Clusters = append(cfg.Clusters, ClusterConfig{Name: name, Scan: *scan, PIN: "", DevNode: ""})
	}

	if len(cfg.Clusters) > MaxClusters {
		return nil, &MonitorError{Kind: ErrFatalConfig, Layer: "config", Err: fmt.Errorf("%w: got %d, max %d", errTooManyClusters, len(cfg.Clusters), MaxClusters)} //nolint:exhaustruct
	}

	return cfg, nil
}

var errTooManyClusters = fmt.Errorf("too many clusters bound")

func parseYesNo(flag, val string) (bool, error) {
	switch val {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	default:
		return false, &MonitorError{Kind: ErrFatalConfig, Layer: "config", Err: fmt.Errorf("--%s: expected yes|no, got %q", flag, val)} //nolint:exhaustruct
	}
}
