package cmd

import (
	"github.com/spf13/cobra"

	"github.com/subproc/gosh/core/config"
)

// initCmd writes the starter configuration and host key.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the gosh configuration in the config directory.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		_, err := config.Initialize(cfgPath, cliLog)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
