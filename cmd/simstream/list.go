package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List simulations under the output root",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}

			sims, err := svc.ListSimulations(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing simulations: %w", err)
			}
			if len(sims) == 0 {
				fmt.Println("No simulations found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SIMULATION ID\tNAME\tSTARTED\tEVENTS")
			for _, s := range sims {
				started := ""
				if !s.StartTime.IsZero() {
					started = s.StartTime.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", s.ID, s.Name, started, s.EventCount)
			}
			return w.Flush()
		},
	}
}
