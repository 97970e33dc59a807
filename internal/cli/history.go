package cli

import (
	"fmt"
	"net/url"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/gametools/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit   int
		offset  int
		kind    string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the journal of events, state and window changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", fmt.Sprint(limit))
			q.Set("offset", fmt.Sprint(offset))
			if kind != "" {
				q.Set("kind", kind)
			}
			if subject != "" {
				q.Set("subject", subject)
			}
			resp, err := client.Get("/api/v1/history?" + q.Encode())
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}
			var entries []model.HistoryEntry
			if err := resp.decode(&entries); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history found.")
				return nil
			}
			fmt.Fprintf(out, "%-16s  %-14s  %-20s  %s\n", "WHEN", "KIND", "SUBJECT", "DETAIL")
			fmt.Fprintf(out, "%-16s  %-14s  %-20s  %s\n", "----", "----", "-------", "------")
			for _, e := range entries {
				fmt.Fprintf(out, "%-16s  %-14s  %-20s  %s\n", humanize.Time(e.At), e.Kind, e.Subject, e.Detail)
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %s shown)\n", len(entries), humanize.Comma(int64(resp.Pagination.Total)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", model.DefaultListLimit, fmt.Sprintf("Maximum entries to show (max %d)", model.MaxListLimit))
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	cmd.Flags().StringVar(&kind, "kind", "", "Only show entries of this kind (event_added, state_change, ...)")
	cmd.Flags().StringVar(&subject, "subject", "", "Only show entries about this event, state or window")
	return cmd
}
