package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Inspect and maintain stored incidents",
}

var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all incidents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			incs, err := a.ctrl.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"incidents": incs,
				"total":     len(incs),
			})
		})
	},
}

var incidentsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one incident",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			inc, err := a.ctrl.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inc)
		})
	},
}

var incidentsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove an incident permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.ctrl.Delete(cmd.Context(), id); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"message": fmt.Sprintf("Incident %d deleted", id)})
		})
	},
}

var incidentsEventsCmd = &cobra.Command{
	Use:   "events ID",
	Short: "Show an incident's timeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			evts, err := a.ctrl.Events(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"incident_id": id,
				"events":      evts,
			})
		})
	},
}

func init() {
	incidentsCmd.AddCommand(incidentsListCmd, incidentsGetCmd, incidentsDeleteCmd, incidentsEventsCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid incident id %q", s)
	}
	return id, nil
}
