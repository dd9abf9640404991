// Command placesync keeps a live view of which content placements have
// assets.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/placesync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
