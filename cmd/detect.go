package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/batch"
	"github.com/meridianbi/gatekeeper/internal/conflict"
)

var (
	detectRecords string
	detectRules   string
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Check calculated fields against their formulas",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := batch.LoadRecords(detectRecords)
		if err != nil {
			return err
		}
		rules, err := batch.LoadRules(detectRules)
		if err != nil {
			return err
		}

		result, err := conflict.New(detectorOptions()).Detect(records, rules.CalculationRules)
		if err != nil {
			return err
		}

		zap.L().Info("detection complete",
			zap.Int("checked", result.Statistics.TotalChecked),
			zap.Int("conflicts", result.Statistics.ConflictsFound),
			zap.Int("manual_review", result.Statistics.ManualReviewRequired),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectRecords, "records", "", "path to the batch records file (required)")
	detectCmd.Flags().StringVar(&detectRules, "rules", "", "path to the validation rules file (required)")
	_ = detectCmd.MarkFlagRequired("records")
	_ = detectCmd.MarkFlagRequired("rules")
	rootCmd.AddCommand(detectCmd)
}
