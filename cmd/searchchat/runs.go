package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"searchchat/backend/internal/runlog"
)

func runsCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the most recent recorded chat runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer rt.Close()

			store := runlog.NewStore(rt.database)
			if !store.Enabled() {
				return errors.New("run log is disabled; set DATABASE_URL")
			}
			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tMODEL\tPATH\tOUTCOME\tRESULTS\tMS\tQUERIES")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					run.CreatedAt, run.Model, run.Path, run.Outcome, run.ResultCount, run.ElapsedMS, strings.Join(run.Queries, " | "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output runs as JSON")
	return cmd
}
