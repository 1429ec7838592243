package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"triagecore/internal/lifecycle"
)

var submitFlags struct {
	logs     string
	logsFile string
	metrics  string
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Open an incident from logs and print its diagnosis",
	Example: `  triagecore submit --logs "OOMKilled: container exceeded memory limit"
  kubectl logs pod/api | triagecore submit --logs-file -`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logs, err := readLogs(cmd.InOrStdin(), submitFlags.logs, submitFlags.logsFile)
		if err != nil {
			return err
		}
		if strings.TrimSpace(logs) == "" {
			return fmt.Errorf("no logs given: use --logs or --logs-file")
		}
		return withApp(cmd.Context(), func(a *app) error {
			res, err := a.ctrl.Submit(cmd.Context(), logs, submitFlags.metrics)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lifecycle.NewSubmitResponse(res))
		})
	},
}

var fixFlags struct {
	id          int64
	fix         string
	newLogs     string
	newLogsFile string
}

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Record a fix applied to an incident and evaluate it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		newLogs, err := readLogs(cmd.InOrStdin(), fixFlags.newLogs, fixFlags.newLogsFile)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			res, err := a.ctrl.ApplyFix(cmd.Context(), fixFlags.id, fixFlags.fix, newLogs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lifecycle.NewActionResponse(res))
		})
	},
}

var resolveFlags struct {
	id    int64
	notes string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Mark an incident resolved",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			res, err := a.ctrl.Resolve(cmd.Context(), resolveFlags.id, resolveFlags.notes)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lifecycle.NewResolveResponse(res))
		})
	},
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.logs, "logs", "", "Log excerpt")
	f.StringVar(&submitFlags.logsFile, "logs-file", "", "Read logs from a file ('-' for stdin)")
	f.StringVar(&submitFlags.metrics, "metrics", "", "Optional metrics text")

	f = fixCmd.Flags()
	f.Int64Var(&fixFlags.id, "id", 0, "Incident ID (required)")
	f.StringVar(&fixFlags.fix, "fix", "", "Description of the fix applied (required)")
	f.StringVar(&fixFlags.newLogs, "new-logs", "", "Logs observed after the fix")
	f.StringVar(&fixFlags.newLogsFile, "new-logs-file", "", "Read post-fix logs from a file ('-' for stdin)")
	_ = fixCmd.MarkFlagRequired("id")
	_ = fixCmd.MarkFlagRequired("fix")

	f = resolveCmd.Flags()
	f.Int64Var(&resolveFlags.id, "id", 0, "Incident ID (required)")
	f.StringVar(&resolveFlags.notes, "notes", "", "Resolution notes")
	_ = resolveCmd.MarkFlagRequired("id")
}

// readLogs returns inline when set, otherwise the contents of file.
func readLogs(stdin io.Reader, inline, file string) (string, error) {
	switch {
	case inline != "":
		return inline, nil
	case file == "":
		return "", nil
	case file == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("read logs: %w", err)
	}
	return string(b), nil
}
