// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"os"

	"github.com/sensorvision/agent/agent"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// DumpCmd prints the sensors and metrics of the device agent
var DumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the sensors and metrics",
	Long:  `dump loads the sensors and metrics of the device agent and prints them as YAML or JSON`,
	Run: func(cmd *cobra.Command, args []string) {
		a, stop := newAgent()
		defer stop()

		settled := observeSettle(a)
		if err := a.Start(); err != nil {
			ctx.WithError(err).Fatal("Could not start agent")
		}
		settled()
		a.Stop()

		if err := a.Dump(os.Stdout, config.GetString("format")); err != nil {
			ctx.WithError(err).Fatal("Could not dump sensors")
		}
	},
}

func init() {
	AgentCmd.AddCommand(DumpCmd)
	DumpCmd.Flags().String("format", agent.FormatYAML, "Output format (yaml or json)")
	viper.BindPFlags(DumpCmd.Flags())
}
