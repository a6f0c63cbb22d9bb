package cmd

import (
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vcsreplica/engine/controlapi"
)

var startCmd = &cobra.Command{
	Use:   "start [PATTERN]",
	Short: "Resume scheduling for destinations matching PATTERN (default: all)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		toggleDestinations(args, true)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop [PATTERN]",
	Short: "Pause scheduling for destinations matching PATTERN (default: all)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		toggleDestinations(args, false)
	},
}

func toggleDestinations(args []string, start bool) {
	client := controlapi.NewClient(viper.GetString("api"))

	statuses, err := client.ListDestinations()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to list destinations:", err)
		os.Exit(1)
	}

	var pattern glob.Glob
	if len(args) == 1 {
		pattern, err = glob.Compile(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid pattern:", err)
			os.Exit(1)
		}
	}

	for _, s := range statuses {
		if pattern != nil && !pattern.Match(s.Name) {
			continue
		}
		if err := client.SetDestinationRunning(s.Name, start); err != nil {
			fmt.Fprintf(os.Stderr, "failed to update %s: %s\n", s.Name, err)
			continue
		}
		fmt.Println(s.Name)
	}
}
