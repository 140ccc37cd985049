package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"societycal/internal/board"
	"societycal/internal/geocode"
	"societycal/internal/model"
	"societycal/internal/view"
)

const browseHelp = `Commands:
  view calendar|list|map     switch view
  prev | next | today        page the calendar or list
  facets                     show the filter panel
  select <Facet>=<Option>    select a filter option
  clear [<Facet>]            clear one facet, or every control
  fee <min> <max>            set the fee range
  mine on|off                only my events
  search <place>             center the map on a place
  show <id>                  event details
  register <id>              register for an event
  join <society-id>          join a society
  export <file.ics>          save what the current view shows
  refresh                    refetch every loaded view
  help | quit`

// Execute implements the go-flags Commander interface for BrowseCommand.
func (c *BrowseCommand) Execute(args []string) error {
	cfg, err := c.globals.setup()
	if err != nil {
		return err
	}
	if c.View != "" {
		if _, err := model.ParseViewKind(c.View); err != nil {
			return err
		}
		cfg.DefaultView = c.View
	}

	ctx := context.Background()
	in := bufio.NewReader(os.Stdin)
	w, h := terminalSize()
	b, err := board.New(ctx, cfg, board.Options{
		Prompter: c.globals.prompter(in, os.Stdout),
		Width:    w,
		Height:   h,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	if c.URL != "" {
		if err := b.ApplyPageURL(ctx, c.URL); err != nil {
			return err
		}
	}
	if err := applyFilter(ctx, b, c.Filter); err != nil {
		return err
	}
	return c.run(ctx, b, in, os.Stdout)
}

// run is the read-eval-render loop.
func (c *BrowseCommand) run(ctx context.Context, b *board.Board, in *bufio.Reader, out io.Writer) error {
	if err := b.Start(ctx); err != nil && errors.Is(err, view.ErrMissingRegion) {
		return err
	}
	render(out, b)

	for {
		fmt.Fprint(out, "> ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		line = strings.TrimSpace(line)
		if line != "" {
			quit, cmdErr := c.dispatch(ctx, b, out, line)
			if cmdErr != nil {
				fmt.Fprintf(out, "error: %v\n", cmdErr)
			}
			if quit {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
	}
}

func (c *BrowseCommand) dispatch(ctx context.Context, b *board.Board, out io.Writer, line string) (bool, error) {
	cmd, rest, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(out, browseHelp)
		return false, nil

	case "view":
		kind, err := model.ParseViewKind(rest)
		if err != nil {
			return false, err
		}
		if err := b.Show(ctx, kind); err != nil && errors.Is(err, view.ErrMissingRegion) {
			return false, err
		}
	case "prev", "next", "today":
		active, ok := b.Active()
		if !ok {
			return false, nil
		}
		nav, ok := active.Renderer().(view.Navigator)
		if !ok {
			return false, fmt.Errorf("the %s view does not page", active.Kind())
		}
		switch cmd {
		case "prev":
			nav.Prev()
		case "next":
			nav.Next()
		default:
			nav.Today()
		}

	case "facets":
		printPanel(out, b)
		return false, nil
	case "select":
		facet, option, ok := strings.Cut(rest, "=")
		if !ok {
			return false, errors.New("usage: select <Facet>=<Option>")
		}
		if err := b.Panel().Select(ctx, strings.TrimSpace(facet), strings.TrimSpace(option)); err != nil {
			return false, err
		}
	case "clear":
		var err error
		if rest == "" {
			err = b.Panel().ClearAll(ctx)
		} else {
			err = b.Panel().Clear(ctx, rest)
		}
		if err != nil {
			return false, err
		}
	case "fee":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return false, errors.New("usage: fee <min> <max>")
		}
		lo, err1 := strconv.Atoi(parts[0])
		hi, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return false, errors.New("fee bounds must be whole numbers")
		}
		// Max first so a raised min is clamped against the new max.
		if err := b.Panel().SetFeeMax(ctx, hi); err != nil {
			return false, err
		}
		if err := b.Panel().SetFeeMin(ctx, lo); err != nil {
			return false, err
		}
	case "mine":
		if err := b.SetMyEventsOnly(ctx, rest == "on" || rest == "true" || rest == "yes"); err != nil {
			return false, err
		}

	case "search":
		loc, err := b.SearchLocation(ctx, rest)
		if errors.Is(err, geocode.ErrNotFound) {
			fmt.Fprintln(out, "Location not found.")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s (%.5f, %.5f)\n", loc.Name, loc.Lat, loc.Lon)
	case "show":
		d, err := b.Detail(rest)
		if err != nil {
			return false, err
		}
		fmt.Fprint(out, d.String())
		return false, nil
	case "register":
		msg, err := b.Register(ctx, rest)
		return false, reportAction(out, msg, err, "Registered.")
	case "join":
		msg, err := b.JoinSociety(ctx, rest)
		return false, reportAction(out, msg, err, "Joined.")
	case "export":
		if rest == "" {
			return false, errors.New("usage: export <file.ics>")
		}
		f, err := os.Create(rest)
		if err != nil {
			return false, err
		}
		n, err := b.ExportICS(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Wrote %d event(s) to %s\n", n, rest)
		return false, nil
	case "refresh":
		b.Refresh(ctx)

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}

	render(out, b)
	return false, nil
}

// render prints the filter line and the active view.
func render(out io.Writer, b *board.Board) {
	query := b.Store().Filter()
	if query == "" {
		query = "(none)"
	}
	mine := ""
	if b.Store().MyEventsOnly() {
		mine = " · my events only"
	}
	fmt.Fprintf(out, "Filter: %s · Fee %s%s\n", query, b.Panel().FeeLabel(), mine)

	active, ok := b.Active()
	if !ok {
		return
	}
	if err := active.LastError(); err != nil {
		fmt.Fprintf(out, "Could not load events: %v\n", err)
	}
	fmt.Fprint(out, active.Render())
}

func printPanel(out io.Writer, b *board.Board) {
	for _, f := range b.Panel().Facets() {
		sel, _ := f.Selected()
		fmt.Fprintf(out, "%s:", f.Label())
		for _, o := range f.Options() {
			if o == sel {
				fmt.Fprintf(out, " [%s]", o)
			} else {
				fmt.Fprintf(out, " %s", o)
			}
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Fee: %s\n", b.Panel().FeeLabel())
}
