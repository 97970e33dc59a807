package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/gametools/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tick loop status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}
			var st model.Status
			if err := resp.decode(&st); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loop:     %s\n", st.State)
			if st.StartedAt != nil {
				fmt.Fprintf(out, "  Started:  %s\n", humanize.Time(*st.StartedAt))
				fmt.Fprintf(out, "  Period:   %s\n", st.TickPeriod)
			}
			fmt.Fprintf(out, "  State:    %s\n", st.CurrentState)
			fmt.Fprintf(out, "  Events:   %d instant, %d queued\n", st.InstantCount, st.QueuedCount)
			fmt.Fprintf(out, "  Ticks:    %s (last %s)\n", humanize.Comma(st.Stats.Ticks), st.Stats.LastTickDuration.Round(time.Microsecond))
			if st.Stats.Overruns > 0 || st.Stats.TickErrors > 0 {
				fmt.Fprintf(out, "  Overruns: %s, tick errors: %s\n", humanize.Comma(st.Stats.Overruns), humanize.Comma(st.Stats.TickErrors))
			}
			if st.Stats.SkippedUpdates > 0 || st.Stats.SkippedEventRuns > 0 {
				fmt.Fprintf(out, "  Skipped:  %d updates, %d event passes\n", st.Stats.SkippedUpdates, st.Stats.SkippedEventRuns)
			}
			if len(st.Windows) > 0 {
				fmt.Fprintln(out, "  Windows:")
				for _, w := range st.Windows {
					flags := ""
					if w.Main {
						flags = " (main)"
					}
					fmt.Fprintf(out, "    - %d %s%s: open=%t focus=%t\n", w.ID, w.Name, flags, w.Open, w.Focus)
				}
			}
			return nil
		},
	}
}
