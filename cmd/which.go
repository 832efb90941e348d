package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subproc/gosh/core/sh"
)

var whichCmd = &cobra.Command{
	Use:   "which NAME...",
	Short: "Resolve program names the way invocations do.",
	Long: `Resolve each NAME to an executable path using the session search
path, including aliases and the underscore-to-hyphen retry.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		session := sh.NewSession(cfg, nil)

		missing := 0
		for _, name := range args {
			program, err := session.Command(name)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s not found\n", name)
				missing++
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), program.Path())
		}
		if missing > 0 {
			return fmt.Errorf("%d of %d names did not resolve", missing, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whichCmd)
}
