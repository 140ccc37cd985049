package main

import (
	"os"

	"societycal/internal/cli"
)

var version = "0.1.0-dev"

func main() {
	// go-flags prints parse and command errors itself.
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
