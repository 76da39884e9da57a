package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var (
	batchStage       string
	batchLimit       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process pending leads concurrently",
	Long:  "Loads non-terminal leads from the store and drives them to terminal stages with bounded concurrency. Interrupting leaves each lead at its last persisted stage.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.LeadFilter{Stage: model.Stage(batchStage), Limit: batchLimit}
		records, err := env.Store.ListLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		leads := make([]*model.LeadRecord, 0, len(records))
		for i := range records {
			if records[i].Stage.IsTerminal() {
				continue
			}
			leads = append(leads, &records[i])
		}
		if len(leads) == 0 {
			zap.L().Info("no pending leads")
			return nil
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentLeads
		}
		zap.L().Info("starting batch",
			zap.Int("leads", len(leads)),
			zap.Int("concurrency", concurrency),
		)

		summary, runErr := env.Batch.Run(ctx, leads, concurrency)

		if alerts := env.Alerter.Evaluate(env.Collector.Snapshot()); len(alerts) > 0 {
			env.Alerter.SendAlerts(cmd.Context(), alerts)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchStage, "stage", "", "only process leads at this stage")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max leads to load (0 = store default)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent leads (default from config)")
	rootCmd.AddCommand(batchCmd)
}
