package cmd

import (
	"io"
	"os"

	"github.com/creack/pty"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/subproc/gosh/core/config"
	"github.com/subproc/gosh/core/logger"
	"github.com/subproc/gosh/core/sh"
	"github.com/subproc/gosh/core/shell"
)

var replCmd = &cobra.Command{
	Use:   "repl [ARGS...]",
	Short: "Start the interactive shell.",
	Long: `Start the interactive shell on the current terminal.

Arguments are exposed to the session as ARGV and ARG0..ARGn.`,
	RunE: runRepl,
}

func runRepl(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	events, closeEvents := openEventLog()
	defer closeEvents()

	sessionLogger := events.NewSession()
	sessionLogger.Record(logger.SessionStart{User: os.Getenv("USER")})

	session := sh.NewSession(cfg, sessionLogger)
	shell.SeedArgs(session, args)

	isTTY := isatty.IsTerminal(os.Stdin.Fd())
	repl, err := shell.New(cfg, session, shell.IO{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Width:  terminalWidth,
		IsTTY:  func() bool { return isTTY },
	})
	if err != nil {
		return err
	}

	if isTTY {
		repl.Banner(buildVersion())
	}
	code := repl.Run()
	sessionLogger.Record(logger.SessionEnd{ExitCode: code})

	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// openEventLog returns the JSON event recorder backed by the app log, or a
// discarding recorder when the config directory was never initialized.
// Interactive use must not require an init step.
func openEventLog() (*logger.Logger, func()) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return logger.NewJsonLinesLogRecorder(io.Discard), func() {}
	}
	fd, err := cfg.OpenAppLog()
	if err != nil {
		cliLog.Debug("app log unavailable, events discarded", "error", err)
		return logger.NewJsonLinesLogRecorder(io.Discard), func() {}
	}
	return logger.NewJsonLinesLogRecorder(fd), func() { fd.Close() }
}

// terminalWidth reports the current terminal width, defaulting to 80 when
// stdin is not a terminal.
func terminalWidth() int {
	_, cols, err := pty.Getsize(os.Stdin)
	if err != nil || cols <= 0 {
		return 80
	}
	return cols
}

func init() {
	rootCmd.AddCommand(replCmd)
}
