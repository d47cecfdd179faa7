package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/batch"
	"github.com/meridianbi/gatekeeper/internal/quality"
)

var (
	assessRecords string
	assessRules   string
	assessTenant  string
	assessOffline bool
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Score batch quality across the seven dimensions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := batch.LoadRecords(assessRecords)
		if err != nil {
			return err
		}
		rules, err := batch.LoadRules(assessRules)
		if err != nil {
			return err
		}

		var fetcher quality.ReferenceFetcher
		if !assessOffline {
			gw, err := initGateway(ctx)
			if err != nil {
				return err
			}
			defer gw.Close() //nolint:errcheck
			fetcher = gw
		}

		verdict, err := quality.New(fetcher, quality.Options{Tenant: assessTenant}).Assess(ctx, records, rules)
		if err != nil {
			return err
		}

		zap.L().Info("assessment complete",
			zap.Float64("overall", verdict.OverallScore),
			zap.String("importability", verdict.Importability),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	},
}

func init() {
	assessCmd.Flags().StringVar(&assessRecords, "records", "", "path to the batch records file (required)")
	assessCmd.Flags().StringVar(&assessRules, "rules", "", "path to the validation rules file (required)")
	assessCmd.Flags().StringVar(&assessTenant, "tenant", "", "tenant scope for referential checks")
	assessCmd.Flags().BoolVar(&assessOffline, "offline", false, "skip referential-integrity lookups against the warehouse")
	_ = assessCmd.MarkFlagRequired("records")
	_ = assessCmd.MarkFlagRequired("rules")
	rootCmd.AddCommand(assessCmd)
}
