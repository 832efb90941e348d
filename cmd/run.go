package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/subproc/gosh/core/sh"
)

var runCmd = &cobra.Command{
	Use:   "run PROG [ARGS...]",
	Short: "Resolve and run one program, mirroring its exit code.",
	Long: `Resolve PROG against the search path and run it with the caller's
terminal. Flags after PROG belong to the program, not to gosh.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		events, closeEvents := openEventLog()
		defer closeEvents()

		session := sh.NewSession(cfg, events.Sessionless())
		program, err := session.Command(args[0])
		if err != nil {
			var notFound *sh.CommandNotFoundError
			if errors.As(err, &notFound) {
				cliLog.Error("command not found", "name", args[0])
				os.Exit(127)
			}
			return err
		}

		invokeArgs := make([]interface{}, 0, len(args))
		for _, arg := range args[1:] {
			invokeArgs = append(invokeArgs, arg)
		}
		invokeArgs = append(invokeArgs, sh.Kwargs{"_fg": true})

		rc, err := program.Invoke(invokeArgs...)
		if err != nil && !errorsAsExit(err) {
			return err
		}

		code, err := rc.ExitCode()
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func errorsAsExit(err error) bool {
	var exitErr *sh.ExitError
	return errors.As(err, &exitErr)
}

func init() {
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)
}
