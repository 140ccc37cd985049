package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config   string `long:"config" short:"c" description:"Path to config file (created with defaults if missing)" default:"./societycal.yaml"`
	EnvFile  string `long:"env-file" description:"Optional .env file with SOCIETYCAL_* overrides" default:".env"`
	Verbose  bool   `long:"verbose" short:"v" description:"Enable debug logging"`
	JSONLogs bool   `long:"json-logs" description:"Write logs as JSON lines"`
	Yes      bool   `long:"yes" short:"y" description:"Answer yes to every confirmation prompt"`
	Version  bool   `long:"version" description:"Show version and exit"`
}

// FilterFlags set the filter panel before a one-shot command runs.
type FilterFlags struct {
	Select []string `long:"select" short:"s" description:"Facet=Option to select, e.g. Location=London (repeatable)"`
	FeeMin int      `long:"fee-min" description:"Lowest fee" default:"-1"`
	FeeMax int      `long:"fee-max" description:"Highest fee; the upper bound means no limit" default:"-1"`
	Mine   bool     `long:"mine" description:"Only events I am registered for"`
}

// BrowseCommand runs the interactive terminal browser.
type BrowseCommand struct {
	View string `long:"view" description:"Initial view: calendar, list or map (default from config)"`
	// URL is a page URL whose my_events parameter seeds the flag.
	URL string `long:"url" description:"Page URL to take the my_events flag from"`

	Filter FilterFlags `group:"Filter Options"`

	globals *GlobalFlags
	version string
}

// ServeCommand serves the HTTP front end with scheduled refresh.
type ServeCommand struct {
	Listen string `long:"listen" description:"HTTP listen address (overrides config if set)"`

	globals *GlobalFlags
	version string
}

// ExportCommand writes filtered events as .ics.
type ExportCommand struct {
	Output string `long:"output" short:"o" description:"Write the calendar to this file instead of stdout"`
	View   string `long:"view" description:"Export only what this view shows (calendar, list or map)"`

	Filter FilterFlags `group:"Filter Options"`

	globals *GlobalFlags
	version string
}

// SnapshotCommand captures a served view as PNG.
type SnapshotCommand struct {
	View    string `long:"view" description:"View to capture: calendar, list or map" default:"calendar"`
	URL     string `long:"url" description:"Front end base URL (default: config listen address)"`
	Output  string `long:"output" short:"o" description:"PNG output path" default:"snapshot.png"`
	Width   int    `long:"width" description:"Viewport width in pixels"`
	Height  int    `long:"height" description:"Viewport height in pixels"`
	Timeout int    `long:"timeout" description:"Capture timeout in seconds"`

	globals *GlobalFlags
	version string
}

// GeocodeCommand runs search-to-map.
type GeocodeCommand struct {
	Args struct {
		Query []string `positional-arg-name:"query" required:"1"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// SuggestCommand lists address suggestions.
type SuggestCommand struct {
	City string `long:"city" description:"City to prefix to the address"`
	Args struct {
		Address []string `positional-arg-name:"address" required:"1"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// RegisterCommand registers for an event behind a confirmation.
type RegisterCommand struct {
	Args struct {
		EventID string `positional-arg-name:"event-id" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}

// JoinCommand joins a society behind a confirmation.
type JoinCommand struct {
	Args struct {
		SocietyID string `positional-arg-name:"society-id" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	version string
}
