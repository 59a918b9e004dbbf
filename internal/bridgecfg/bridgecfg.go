// Package bridgecfg handles the bridge's persisted configuration file and
// its command-line flags.
package bridgecfg

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Options is the full set of user-controllable bridge settings, whether
// they came from the persisted file or the command line.
type Options struct {
	JackServerName string
	ExportHWPorts  bool
	RemoteControl  bool
}

// fileOption is one <option name="..." value="..."/> element.
type fileOption struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// fileRoot is the persisted option-list file's root element: a flat list
// of name/value children, no nesting. No XML library appears anywhere in
// the example pack or turned up in an ecosystem search for this shape, so
// this one piece uses encoding/xml directly.
type fileRoot struct {
	XMLName xml.Name     `xml:"a2jmidid"`
	Options []fileOption `xml:"option"`
}

const (
	optJackServerName = "jack_server_name"
	optExportHWPorts  = "export_hw_ports"
)

// Load reads options from path. A missing file is not an error: it returns
// zero-value Options, the same as a freshly installed bridge.
func Load(path string) (Options, error) {
	var opts Options

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return opts, nil
	}
	if err != nil {
		return opts, err
	}

	var root fileRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return opts, fmt.Errorf("bridgecfg: parsing %s: %w", path, err)
	}

	for _, o := range root.Options {
		switch o.Name {
		case optJackServerName:
			opts.JackServerName = o.Value
		case optExportHWPorts:
			opts.ExportHWPorts = o.Value == "true"
		}
	}
	return opts, nil
}

// Save writes opts to path, overwriting any existing file.
func Save(path string, opts Options) error {
	root := fileRoot{
		Options: []fileOption{
			{Name: optJackServerName, Value: opts.JackServerName},
			{Name: optExportHWPorts, Value: boolString(opts.ExportHWPorts)},
		},
	}

	data, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), data...), 0o644)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ParseFlags parses argv per the bridge's command-line contract: -j/--jack-server
// names the jack server to connect to, -e/--export-hw exports hardware
// ports, and an optional positional "dbus" argument switches into
// remote-control mode. Defaults come from fileOpts. It returns the merged
// Options, or prints usage and calls os.Exit(0)/os.Exit(1) on --help or a
// bad argument.
func ParseFlags(argv []string, fileOpts Options) Options {
	fs := pflag.NewFlagSet(argv[0], pflag.ContinueOnError)

	jackServer := fs.StringP("jack-server", "j", fileOpts.JackServerName, "Jack server name to connect to.")
	exportHW := fs.BoolP("export-hw", "e", fileOpts.ExportHWPorts, "Export hardware ports.")
	help := fs.BoolP("help", "h", false, "Display help text.")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - ALSA sequencer <-> JACK MIDI bridge\n", argv[0])
		fmt.Fprintf(os.Stderr, "\nUsage: %s [OPTIONS] [dbus]\n\n", argv[0])
		fmt.Fprintf(os.Stderr, "dbus, if given, starts the bridge in remote-control mode instead of\nrunning standalone.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(argv[1:]); err != nil {
		fs.Usage()
		os.Exit(1)
	}
	if *help {
		fs.Usage()
		os.Exit(0)
	}

	opts := Options{JackServerName: *jackServer, ExportHWPorts: *exportHW}

	switch len(fs.Args()) {
	case 0:
	case 1:
		if fs.Args()[0] != "dbus" {
			fmt.Fprintf(os.Stderr, "unrecognized argument %q (expected \"dbus\")\n", fs.Args()[0])
			os.Exit(1)
		}
		opts.RemoteControl = true
	default:
		fmt.Fprintf(os.Stderr, "too many arguments: %v\n", fs.Args())
		os.Exit(1)
	}

	return opts
}
