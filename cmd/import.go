package main

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import discovered leads from CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close()

		created, skipped, err := importLeads(cmd.Context(), env.Store, f)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.Int("skipped", skipped),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

// importLeads reads a header-driven CSV and seeds discovered leads. A
// lead whose id already exists in the store is skipped, so re-importing
// a file never resets pipeline progress.
func importLeads(ctx context.Context, st *store.Facade, r io.Reader) (created, skipped int, err error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return 0, 0, eris.Wrap(err, "read csv header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["name"]; !ok {
		return 0, 0, eris.New("csv must have a name column")
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return created, skipped, eris.Wrap(readErr, "read csv row")
		}

		name := field(row, "name")
		if name == "" {
			skipped++
			continue
		}

		lead := model.NewLead(name, field(row, "domain"))
		lead.Email = field(row, "email")
		lead.Phone = field(row, "phone")
		lead.Address = field(row, "address")
		lead.Location = field(row, "location")
		lead.Category = field(row, "category")

		if _, getErr := st.GetLead(ctx, lead.ID); getErr == nil {
			skipped++
			continue
		} else if !errors.Is(getErr, store.ErrNotFound) {
			return created, skipped, getErr
		}

		if saveErr := st.SaveLead(ctx, lead); saveErr != nil {
			return created, skipped, saveErr
		}
		created++
	}
	return created, skipped, nil
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
