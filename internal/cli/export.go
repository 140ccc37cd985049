package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"societycal/internal/board"
	appLog "societycal/internal/log"
	"societycal/internal/model"
)

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	cfg, err := c.globals.setup()
	if err != nil {
		return err
	}

	ctx := context.Background()
	b, err := board.New(ctx, cfg, board.Options{Prompter: c.globals.prompter(os.Stdin, os.Stderr)})
	if err != nil {
		return err
	}
	defer b.Close()

	if err := applyFilter(ctx, b, c.Filter); err != nil {
		return err
	}
	if c.View != "" {
		kind, err := model.ParseViewKind(c.View)
		if err != nil {
			return err
		}
		if err := b.Show(ctx, kind); err != nil {
			return err
		}
	}

	var w io.Writer = os.Stdout
	if c.Output != "" {
		f, err := os.Create(c.Output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := b.ExportICS(ctx, w)
	if err != nil {
		return err
	}
	appLog.Info("ics exported", "events", n, "query", b.Store().Filter(), "output", c.Output)
	if c.Output != "" {
		fmt.Printf("Wrote %d event(s) to %s\n", n, c.Output)
	}
	return nil
}
