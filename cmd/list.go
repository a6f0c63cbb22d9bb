package cmd

import (
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vcsreplica/engine/controlapi"
)

var listCmd = &cobra.Command{
	Use:   "list [PATTERN]",
	Short: "List configured destinations and their state",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
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
			fmt.Printf("%-20s replaying=%-5v\n", s.Name, s.Replaying)
		}
	},
}
