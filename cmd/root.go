package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/subproc/gosh/core/config"
)

var cfgPath string

// cliLog renders operator-facing messages; engine events go to the JSON
// app log instead.
var cliLog = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: false,
})

// loadConfig reads the configured directory, falling back to the built-in
// defaults when it was never initialized. Commands that need on-disk state
// (serve, logs) call requireConfig instead.
func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		cliLog.Debug("no config found, using defaults", "path", cfgPath)
		return config.Default(cfgPath), nil
	}
	return configuration, err
}

func requireConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		cliLog.Error("couldn't load config: did you run init?", "path", cfgPath)
	}
	return configuration, err
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gosh",
	Short: "Invoke programs as first-class values, interactively or from code.",
	Long: `gosh is a command invocation engine with an interactive shell on top.

Run it with no arguments on a terminal to get the shell, or use the
subcommands for one-shot invocations and server mode.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if isatty.IsTerminal(os.Stdin.Fd()) {
			return runRepl(cmd, args)
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
}
