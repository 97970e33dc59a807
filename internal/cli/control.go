package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/gametools/pkg/model"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state [name]",
		Short: "List states, or change to the named state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				resp, err := client.Put("/api/v1/state", map[string]string{"name": args[0]})
				if err != nil {
					return fmt.Errorf("change state: %w", err)
				}
				var st model.StateInfo
				if err := resp.decode(&st); err != nil {
					return err
				}
				fmt.Fprintf(out, "State changed: %s\n", st.Name)
				return nil
			}

			resp, err := client.Get("/api/v1/states")
			if err != nil {
				return fmt.Errorf("list states: %w", err)
			}
			var states []model.StateInfo
			if err := resp.decode(&states); err != nil {
				return err
			}
			for _, st := range states {
				marker := " "
				if st.Current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, st.Name)
			}
			return nil
		},
	}
}

type keyResponse struct {
	Name    string `json:"name"`
	Toggled bool   `json:"toggled"`
}

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key [name down|up]",
		Short: "List held keys, or press or release a simulated key",
		Args:  cobra.MatchAll(cobra.MaximumNArgs(2), noSingleArg),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				resp, err := client.Get("/api/v1/keys")
				if err != nil {
					return fmt.Errorf("list keys: %w", err)
				}
				var keys []keyResponse
				if err := resp.decode(&keys); err != nil {
					return err
				}
				if len(keys) == 0 {
					fmt.Fprintln(out, "No keys held.")
				}
				for _, k := range keys {
					fmt.Fprintln(out, k.Name)
				}
				return nil
			}

			resp, err := client.Post("/api/v1/keys/"+escape(args[0])+"/"+escape(args[1]), nil)
			if err != nil {
				return fmt.Errorf("key %s: %w", args[1], err)
			}
			var k keyResponse
			if err := resp.decode(&k); err != nil {
				return err
			}
			fmt.Fprintf(out, "Key %s %s (toggled=%t)\n", k.Name, args[1], k.Toggled)
			return nil
		},
	}
}

type desktopResponse struct {
	Windows []string `json:"windows"`
	Focused string   `json:"focused"`
}

func newWindowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "window [title open|close|focus]",
		Short: "List tracked windows, or open, close or focus a simulated window",
		Args:  cobra.MatchAll(cobra.MaximumNArgs(2), noSingleArg),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 2 {
				resp, err := client.Post("/api/v1/desktop/"+escape(args[0])+"/"+escape(args[1]), nil)
				if err != nil {
					return fmt.Errorf("window %s: %w", args[1], err)
				}
				var d desktopResponse
				if err := resp.decode(&d); err != nil {
					return err
				}
				fmt.Fprintf(out, "Desktop: %d windows, focused %q\n", len(d.Windows), d.Focused)
				return nil
			}

			resp, err := client.Get("/api/v1/windows")
			if err != nil {
				return fmt.Errorf("list windows: %w", err)
			}
			var windows []model.WindowInfo
			if err := resp.decode(&windows); err != nil {
				return err
			}
			if len(windows) == 0 {
				fmt.Fprintln(out, "No windows tracked.")
			}
			for _, w := range windows {
				fmt.Fprintf(out, "%-3d %-24s open=%-5t focus=%-5t main=%t\n", w.ID, w.Name, w.Open, w.Focus, w.Main)
			}
			return nil
		},
	}
}

func noSingleArg(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return fmt.Errorf("%s needs both a target and an action", cmd.Name())
	}
	return nil
}
