package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Browse   *BrowseCommand
	Serve    *ServeCommand
	Export   *ExportCommand
	Snapshot *SnapshotCommand
	Geocode  *GeocodeCommand
	Suggest  *SuggestCommand
	Register *RegisterCommand
	Join     *JoinCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "societycal"
	parser.LongDescription = "Browse, filter and register for society events from the terminal or a local web front end."

	cmds := &commands{
		Browse:   &BrowseCommand{globals: &globals, version: version},
		Serve:    &ServeCommand{globals: &globals, version: version},
		Export:   &ExportCommand{globals: &globals, version: version},
		Snapshot: &SnapshotCommand{globals: &globals, version: version},
		Geocode:  &GeocodeCommand{globals: &globals, version: version},
		Suggest:  &SuggestCommand{globals: &globals, version: version},
		Register: &RegisterCommand{globals: &globals, version: version},
		Join:     &JoinCommand{globals: &globals, version: version},
	}

	parser.AddCommand("browse", "Interactive event browser", "Open the calendar, list and map views in the terminal and drive the filter panel interactively.", cmds.Browse)
	parser.AddCommand("serve", "Serve the views over HTTP", "Serve the views, filter API and ICS export over HTTP, refreshing on the configured schedule.", cmds.Serve)
	parser.AddCommand("export", "Export filtered events as iCalendar", "Write the events matching the given filters as an .ics calendar.", cmds.Export)
	parser.AddCommand("snapshot", "Capture a view as PNG", "Capture a running front end's view page with headless Chromium.", cmds.Snapshot)
	parser.AddCommand("geocode", "Search a location for the map", "Geocode free text and remember it as the map's searched location.", cmds.Geocode)
	parser.AddCommand("suggest", "Suggest addresses", "List address completions for an event form.", cmds.Suggest)
	parser.AddCommand("register", "Register for an event", "Register the configured user for an event. Asks for confirmation.", cmds.Register)
	parser.AddCommand("join", "Join a society", "Join a society as the configured user. Asks for confirmation.", cmds.Join)

	return parser, &globals, cmds
}

// Run is the main entry point for the CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// --version is valid without a subcommand.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("societycal %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
