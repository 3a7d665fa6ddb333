package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"searchchat/backend/internal/service"
)

func modelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the backend offers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			models, err := service.New(rt.cfg, nil, rt.logger).Models.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}

			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(models)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tOWNED BY")
			for _, model := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\n", model.ID, model.Name, model.OwnedBy)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output models as JSON")
	return cmd
}
