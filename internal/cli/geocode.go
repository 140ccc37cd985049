package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"societycal/internal/board"
	"societycal/internal/geocode"
)

// Execute implements the go-flags Commander interface for GeocodeCommand.
func (c *GeocodeCommand) Execute(args []string) error {
	cfg, err := c.globals.setup()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := board.New(ctx, cfg, board.Options{KeepFilter: true})
	if err != nil {
		return err
	}
	defer b.Close()

	loc, err := b.SearchLocation(ctx, strings.Join(c.Args.Query, " "))
	if errors.Is(err, geocode.ErrNotFound) {
		fmt.Println("Location not found.")
		return err
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s\n  lat %.6f, lon %.6f\n", loc.Name, loc.Lat, loc.Lon)
	return nil
}

// Execute implements the go-flags Commander interface for SuggestCommand.
func (c *SuggestCommand) Execute(args []string) error {
	cfg, err := c.globals.setup()
	if err != nil {
		return err
	}
	places, err := geocode.NewClient(cfg.Geocode).Suggest(context.Background(), strings.Join(c.Args.Address, " "), c.City)
	if err != nil {
		return err
	}
	if places == nil {
		places = []geocode.Place{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(places)
}
