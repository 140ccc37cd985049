package cli

import (
	"context"
	"fmt"
	"time"

	"societycal/internal/capture"
	appLog "societycal/internal/log"
	"societycal/internal/model"
)

// Execute implements the go-flags Commander interface for SnapshotCommand.
func (c *SnapshotCommand) Execute(args []string) error {
	cfg, err := c.globals.setup()
	if err != nil {
		return err
	}
	kind, err := model.ParseViewKind(c.View)
	if err != nil {
		return err
	}
	base := c.URL
	if base == "" {
		base = cfg.Listen
	}
	target, err := capture.ViewURL(base, kind)
	if err != nil {
		return err
	}

	opts := capture.Options{
		URL:        target,
		OutputPath: c.Output,
		Width:      c.Width,
		Height:     c.Height,
		Timeout:    time.Duration(c.Timeout) * time.Second,
	}
	appLog.Info("capturing view", "url", target, "output", c.Output)
	if err := capture.ViewPNG(context.Background(), opts); err != nil {
		return err
	}
	fmt.Printf("Saved %s view to %s\n", kind, c.Output)
	return nil
}
