package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/subproc/gosh/core/logger"
)

var logsCmd = &cobra.Command{
	Use:     "logs",
	Aliases: []string{"log"},
	Short:   "Explore the invocation event log.",
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Summarize sessions, logins, invocations, and failures.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var report logger.Report
		return printLogReport(cmd, &report, report.Update)
	},
}

var sessionsCommand = &cobra.Command{
	Use:   "sessions",
	Short: "Show what each recorded session did, line by line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var report logger.InteractionReport
		return printLogReport(cmd, &report, report.Update)
	},
}

var bugsCommand = &cobra.Command{
	Use:   "bugs",
	Short: "Pull events that likely point at engine or config problems.",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := logger.NewBugReport()
		return printLogReport(cmd, report, report.Update)
	},
}

// printLogReport replays the app log through update and renders the
// accumulated report as YAML.
func printLogReport(cmd *cobra.Command, report interface{}, update func(le *logger.LogEntry)) error {
	cmd.SilenceUsage = true

	configuration, err := requireConfig()
	if err != nil {
		return err
	}

	fd, err := configuration.ReadAppLog()
	if err != nil {
		return err
	}
	defer fd.Close()

	if err := logger.ReadJSONLinesLog(fd, update); err != nil {
		return err
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(reportCommand)
	logsCmd.AddCommand(sessionsCommand)
	logsCmd.AddCommand(bugsCommand)
}
