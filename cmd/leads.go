package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var (
	leadsStage string
	leadsLimit int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List leads by stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.Store.ListLeads(ctx, store.LeadFilter{
			Stage: model.Stage(leadsStage),
			Limit: leadsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTAGE\tSCORE\tTIER\tUPDATED")
		for _, lead := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%s\n",
				lead.ID, lead.Name, lead.Stage, lead.ICPScore, lead.PriorityTier,
				lead.LastUpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var leadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single lead record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		lead, err := env.Store.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get lead %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lead)
	},
}

func init() {
	leadsCmd.Flags().StringVar(&leadsStage, "stage", "", "filter by stage")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 50, "max leads to list")
	leadsCmd.AddCommand(leadsShowCmd)
	rootCmd.AddCommand(leadsCmd)
}
