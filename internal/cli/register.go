package cli

import (
	"context"
	"os"

	"societycal/internal/board"
)

// Execute implements the go-flags Commander interface for RegisterCommand.
func (c *RegisterCommand) Execute(args []string) error {
	cfg, err := c.globals.setup()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := board.New(ctx, cfg, board.Options{
		Prompter:   c.globals.prompter(os.Stdin, os.Stderr),
		KeepFilter: true,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	msg, err := b.Register(ctx, c.Args.EventID)
	return reportAction(os.Stdout, msg, err, "Registered.")
}

// Execute implements the go-flags Commander interface for JoinCommand.
func (c *JoinCommand) Execute(args []string) error {
	cfg, err := c.globals.setup()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := board.New(ctx, cfg, board.Options{
		Prompter:   c.globals.prompter(os.Stdin, os.Stderr),
		KeepFilter: true,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	msg, err := b.JoinSociety(ctx, c.Args.SocietyID)
	return reportAction(os.Stdout, msg, err, "Joined.")
}
