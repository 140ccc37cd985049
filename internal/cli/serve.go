package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"societycal/internal/board"
	appLog "societycal/internal/log"
	"societycal/internal/web"
)

// Execute implements the go-flags Commander interface for ServeCommand.
func (c *ServeCommand) Execute(args []string) error {
	cfg, err := c.globals.setup()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	appLog.Info("societycal starting", "version", c.version, "listen", cfg.Listen)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := board.New(ctx, cfg, board.Options{Prompter: c.globals.prompter(os.Stdin, os.Stderr)})
	if err != nil {
		return err
	}
	defer b.Close()

	// A failed first fetch is kept on the view and retried on schedule.
	if err := b.Start(ctx); err != nil {
		appLog.Warn("initial view load failed", "view", cfg.DefaultView, "error", err.Error())
	}

	sched, err := startRefresh(ctx, cfg.RefreshCron, b)
	if err != nil {
		return err
	}
	if sched != nil {
		defer sched.Stop()
	}

	err = web.StartServer(ctx, cfg, b)
	appLog.Info("societycal exiting")
	return err
}

// startRefresh refetches every initialized view on spec. An empty spec
// disables the schedule and returns a nil scheduler.
func startRefresh(ctx context.Context, spec string, b *board.Board) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	sched := cron.New()
	if _, err := sched.AddFunc(spec, func() {
		appLog.Debug("scheduled refresh")
		b.Refresh(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	sched.Start()
	appLog.Info("refresh scheduled", "cron", spec)
	return sched, nil
}
