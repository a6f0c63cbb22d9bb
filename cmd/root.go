// Copyright © 2019 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vcsreplica/engine/cmd/servecmd"
)

const defaultControlAddress = "http://127.0.0.1:8089"
const defaultDataDir = "./data"

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vcsreplica",
	Short: "Replicates git ref updates from a primary site to configured remotes",
	Long: `vcsreplica mirrors ref updates from a primary site to a configurable set
of remote destinations, persisting pending work so it survives a restart and
retrying transient push failures.`,
}

func init() {
	rootCmd.PersistentFlags().String("api", defaultControlAddress, "Control API base URL of a running daemon")
	rootCmd.PersistentFlags().String("home", defaultDataDir, "Path to the data directory (task store + config)")
	viper.BindPFlag("api", rootCmd.PersistentFlags().Lookup("api"))
	viper.BindPFlag("home", rootCmd.PersistentFlags().Lookup("home"))

	rootCmd.AddCommand(servecmd.ServeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
}
