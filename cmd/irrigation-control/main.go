// Command irrigation-control is the composition root for the control
// plane: it has no inbound RPC surface of its own, instead supervising
// the background workers that build weekly schedules, react to real-time
// events, and push field instructions, alongside a couple of one-shot
// operator subcommands for topology validation and ad-hoc schedule builds.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "irrigation-control",
		Short: "Munbon irrigation network control plane",
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newTopologyCommand())
	root.AddCommand(newScheduleCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
