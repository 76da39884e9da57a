package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var (
	runLeadID string
	runName   string
	runDomain string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a single lead through the pipeline",
	Long:  "Resumes an existing lead by id, or seeds a new one from --name/--domain, and advances it to a terminal stage.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runLeadID == "" && runName == "" {
			return eris.New("either --id or --name is required")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var lead *model.LeadRecord
		if runLeadID != "" {
			lead, err = env.Store.GetLead(ctx, runLeadID)
			if err != nil {
				return eris.Wrapf(err, "load lead %s", runLeadID)
			}
		} else {
			id := model.LeadID(runName, runDomain)
			lead, err = env.Store.GetLead(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				lead = model.NewLead(runName, runDomain)
				if err := env.Store.SaveLead(ctx, lead); err != nil {
					return eris.Wrap(err, "seed lead")
				}
			} else if err != nil {
				return eris.Wrapf(err, "load lead %s", id)
			}
		}

		if lead.Stage.IsTerminal() {
			zap.L().Info("lead already terminal",
				zap.String("lead_id", lead.ID),
				zap.String("stage", string(lead.Stage)),
			)
		} else if err := env.Orchestrator.Process(ctx, lead); err != nil {
			return eris.Wrap(err, "process lead")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lead)
	},
}

func init() {
	runCmd.Flags().StringVar(&runLeadID, "id", "", "existing lead id to resume")
	runCmd.Flags().StringVar(&runName, "name", "", "company name for a new lead")
	runCmd.Flags().StringVar(&runDomain, "domain", "", "company domain for a new lead")
	rootCmd.AddCommand(runCmd)
}
