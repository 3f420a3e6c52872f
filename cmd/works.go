package cmd

import (
	"fmt"
	"text/tabwriter"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

// newWorksCmd creates the `works` command.
func newWorksCmd() *cobra.Command {
	var (
		identity string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "works",
		Short: "List the works of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			works, err := newService(cfg).ListWorks(cmd.Context(), credentialsFrom(cfg, identity))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(works, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode works: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			if len(works) == 0 {
				fmt.Fprintln(out, "No works found.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tURL")
			for _, w := range works {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", w.ID, w.Title, w.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "account identity (default: SCRIBE_PLATFORM_IDENTITY)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print works as JSON")
	return cmd
}
