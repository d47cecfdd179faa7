package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/batch"
	"github.com/meridianbi/gatekeeper/internal/enhance"
	"github.com/meridianbi/gatekeeper/internal/gateway"
	"github.com/meridianbi/gatekeeper/internal/model"
	"github.com/meridianbi/gatekeeper/internal/report"
)

var (
	enhanceRecords string
	enhanceRules   string
	enhanceTenant  string
	enhanceTable   string
	enhanceMaster  string
	enhanceReport  string
	enhanceOffline bool
)

var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Run the full pre-load pipeline and record the verdict",
	Long:  "Resolution, conflict detection, quality assessment, and imputation over one batch. The merged decision is persisted to the run log and the full result printed as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := batch.LoadRecords(enhanceRecords)
		if err != nil {
			return err
		}
		rules, err := batch.LoadRules(enhanceRules)
		if err != nil {
			return err
		}

		master := enhanceMaster
		if master == "" {
			master = cfg.Resolver.MasterTable
		}

		var gw gateway.Gateway
		if !enhanceOffline {
			gw, err = initGateway(ctx)
			if err != nil {
				return err
			}
			defer gw.Close() //nolint:errcheck
		} else if master != "" {
			return eris.New("cannot resolve against a master table in offline mode")
		}

		p := enhance.New(gw, enhance.Config{
			Tenant:      enhanceTenant,
			MasterTable: master,
			Resolver:    resolverOptions(),
			Detector:    detectorOptions(),
			Imputer:     imputerOptions(),
		})

		result, err := p.Run(ctx, records, rules)
		if err != nil {
			return eris.Wrap(err, "enhance run")
		}

		if err := recordRun(ctx, result, len(records)); err != nil {
			return err
		}

		if enhanceReport != "" {
			if err := report.WriteWorkbook(enhanceReport, result); err != nil {
				return err
			}
			zap.L().Info("report written", zap.String("path", enhanceReport))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// recordRun persists the merged verdict to the audit trail.
func recordRun(ctx context.Context, result *enhance.Result, recordCount int) error {
	st, err := initRunlog(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "enhance: marshal result")
	}

	run, err := st.CreateRun(ctx, model.Run{
		Tenant:           enhanceTenant,
		Table:            enhanceTable,
		RecordCount:      recordCount,
		Decision:         result.Decision,
		RequiresApproval: result.RequiresApproval,
		Result:           payload,
	})
	if err != nil {
		return eris.Wrap(err, "enhance: record run")
	}

	zap.L().Info("run recorded",
		zap.String("run_id", run.ID),
		zap.String("decision", run.Decision),
	)
	return nil
}

func init() {
	enhanceCmd.Flags().StringVar(&enhanceRecords, "records", "", "path to the batch records file (required)")
	enhanceCmd.Flags().StringVar(&enhanceRules, "rules", "", "path to the validation rules file (required)")
	enhanceCmd.Flags().StringVar(&enhanceTenant, "tenant", "", "tenant the batch belongs to (required)")
	enhanceCmd.Flags().StringVar(&enhanceTable, "table", "", "warehouse table this batch targets")
	enhanceCmd.Flags().StringVar(&enhanceMaster, "master-table", "", "master-data table for entity resolution")
	enhanceCmd.Flags().StringVar(&enhanceReport, "report", "", "write an xlsx findings report to this path")
	enhanceCmd.Flags().BoolVar(&enhanceOffline, "offline", false, "skip all warehouse lookups")
	_ = enhanceCmd.MarkFlagRequired("records")
	_ = enhanceCmd.MarkFlagRequired("rules")
	_ = enhanceCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(enhanceCmd)
}
