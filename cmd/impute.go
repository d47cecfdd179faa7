package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/batch"
	"github.com/meridianbi/gatekeeper/internal/impute"
)

var (
	imputeRecords  string
	imputeRules    string
	imputeStrategy string
)

var imputeCmd = &cobra.Command{
	Use:   "impute",
	Short: "Fill missing values the risk gate allows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := batch.LoadRecords(imputeRecords)
		if err != nil {
			return err
		}
		rules, err := batch.LoadRules(imputeRules)
		if err != nil {
			return err
		}

		opts := imputerOptions()
		if imputeStrategy != "" {
			opts.Strategy = imputeStrategy
		}

		result, err := impute.New(opts).Impute(ctx, records, rules.FieldConfigs)
		if err != nil {
			return err
		}

		zap.L().Info("imputation complete",
			zap.Int("missing", result.Statistics.MissingCount),
			zap.Int("imputed", result.Statistics.ImputedCount),
			zap.Int("blocked_fields", result.Statistics.BlockedFieldsCount),
			zap.Bool("requires_approval", result.Statistics.RequiresApproval),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	imputeCmd.Flags().StringVar(&imputeRecords, "records", "", "path to the batch records file (required)")
	imputeCmd.Flags().StringVar(&imputeRules, "rules", "", "path to the validation rules file (required)")
	imputeCmd.Flags().StringVar(&imputeStrategy, "strategy", "", "force a fill method (rule_based, nearest_neighbor, iterative, model_based)")
	_ = imputeCmd.MarkFlagRequired("records")
	_ = imputeCmd.MarkFlagRequired("rules")
	rootCmd.AddCommand(imputeCmd)
}
