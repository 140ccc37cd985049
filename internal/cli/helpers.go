package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"societycal/internal/board"
	"societycal/internal/config"
	"societycal/internal/confirm"
	appLog "societycal/internal/log"
)

// setup configures logging and loads the config file plus env overrides.
func (g *GlobalFlags) setup() (*config.Config, error) {
	if g.JSONLogs {
		appLog.SetOutput(os.Stderr, true)
	}
	if g.Verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(g.EnvFile); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	appLog.Debug("effective config",
		"config_path", g.Config,
		"api", cfg.API.BaseURL,
		"timezone", cfg.Timezone,
		"default_view", cfg.DefaultView,
		"session_backend", cfg.Session.Backend,
		"facets", len(cfg.Filters.Facets),
	)
	return cfg, nil
}

// prompter picks how confirmations are answered: --yes approves, a
// terminal is asked, and any other reader gets line prompts.
func (g *GlobalFlags) prompter(in io.Reader, out io.Writer) confirm.Prompter {
	if g.Yes {
		return confirm.AutoApprove{}
	}
	if f, ok := in.(*os.File); ok {
		return confirm.NewTerminalPrompter(f, out)
	}
	return confirm.NewLinePrompter(in, out)
}

// terminalSize is the page size for terminal views.
func terminalSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return board.DefaultWidth, board.DefaultHeight
	}
	return w, h
}

// applyFilter drives the panel from command-line filter flags.
func applyFilter(ctx context.Context, b *board.Board, f FilterFlags) error {
	panel := b.Panel()
	for _, sel := range f.Select {
		facet, option, ok := strings.Cut(sel, "=")
		if !ok {
			return fmt.Errorf("invalid --select %q (want Facet=Option)", sel)
		}
		if err := panel.Select(ctx, strings.TrimSpace(facet), strings.TrimSpace(option)); err != nil {
			return err
		}
	}
	if f.FeeMin >= 0 {
		if err := panel.SetFeeMin(ctx, f.FeeMin); err != nil {
			return err
		}
	}
	if f.FeeMax >= 0 {
		if err := panel.SetFeeMax(ctx, f.FeeMax); err != nil {
			return err
		}
	}
	if f.Mine {
		return b.SetMyEventsOnly(ctx, true)
	}
	return nil
}

// reportAction prints the outcome of a gated action. Declining is not an
// error; the action simply did not run.
func reportAction(out io.Writer, msg string, err error, done string) error {
	switch {
	case errors.Is(err, confirm.ErrDeclined):
		fmt.Fprintln(out, "Cancelled.")
		return nil
	case err != nil:
		return err
	}
	if msg == "" {
		msg = done
	}
	fmt.Fprintln(out, msg)
	return nil
}
