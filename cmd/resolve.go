package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianbi/gatekeeper/internal/batch"
	"github.com/meridianbi/gatekeeper/internal/resolver"
)

var (
	resolveRecords string
	resolveTenant  string
	resolveTable   string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Match batch records against a master-data table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		records, err := batch.LoadRecords(resolveRecords)
		if err != nil {
			return err
		}

		table := resolveTable
		if table == "" {
			table = cfg.Resolver.MasterTable
		}
		if table == "" {
			return eris.New("no master table given (--table or resolver.master_table)")
		}

		gw, err := initGateway(ctx)
		if err != nil {
			return err
		}
		defer gw.Close() //nolint:errcheck

		master, err := gw.FetchEntities(ctx, table, resolveTenant)
		if err != nil {
			return eris.Wrap(err, "resolve: fetch master data")
		}

		result, err := resolver.New(resolverOptions()).Resolve(ctx, records, master)
		if err != nil {
			return err
		}

		zap.L().Info("resolution complete",
			zap.String("table", table),
			zap.Int("records", result.Statistics.Total),
			zap.Int("matched", result.Statistics.MatchedCount),
			zap.Float64("match_rate", result.Statistics.MatchRate),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveRecords, "records", "", "path to the batch records file (required)")
	resolveCmd.Flags().StringVar(&resolveTenant, "tenant", "", "tenant whose master data to match against (required)")
	resolveCmd.Flags().StringVar(&resolveTable, "table", "", "master-data table to resolve against")
	_ = resolveCmd.MarkFlagRequired("records")
	_ = resolveCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(resolveCmd)
}
