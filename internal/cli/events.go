package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/gametools/pkg/model"
)

func newEventsCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List registered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/events/"
			if group != "" {
				path += "?group=" + url.QueryEscape(group)
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			var events []model.EventInfo
			if err := resp.decode(&events); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events registered.")
				return nil
			}
			fmt.Fprintf(out, "%-14s  %-8s  %-5s  %-12s  %s\n", "ID", "PRIORITY", "INDEX", "GROUP", "TYPE")
			fmt.Fprintf(out, "%-14s  %-8s  %-5s  %-12s  %s\n", "--", "--------", "-----", "-----", "----")
			for _, e := range events {
				index := "-"
				if e.Index >= 0 {
					index = fmt.Sprint(e.Index)
				}
				fmt.Fprintf(out, "%-14s  %-8s  %-5s  %-12s  %s\n", e.ID, e.Priority, index, e.Group, e.Type)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Only list events of this group")

	cmd.AddCommand(newEventsAddCmd(), newEventsRemoveCmd(), newEventsTemplatesCmd())
	return cmd
}

func newEventsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <template> [key=value...]",
		Short: "Create an event from a template",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventArgs := map[string]string{}
			for _, kv := range args[1:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid argument %q, want key=value", kv)
				}
				eventArgs[k] = v
			}
			resp, err := client.Post("/api/v1/events/", map[string]any{
				"template": args[0],
				"args":     eventArgs,
			})
			if err != nil {
				return fmt.Errorf("create event: %w", err)
			}
			var e model.EventInfo
			if err := resp.decode(&e); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event created: %s (%s, %s)\n", e.ID, e.Type, e.Priority)
			return nil
		},
	}
}

func newEventsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <event_id>",
		Aliases: []string{"remove"},
		Short:   "Remove an event",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Delete("/api/v1/events/" + escape(args[0])); err != nil {
				return fmt.Errorf("remove event: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event removed: %s\n", args[0])
			return nil
		},
	}
}

func newEventsTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List event templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/events/templates")
			if err != nil {
				return fmt.Errorf("list templates: %w", err)
			}
			var names []string
			if err := resp.decode(&names); err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
