package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
	"github.com/TeoEchavarria/health-tech-app/internal/domain"
)

var (
	aggregateType string
	aggregateFile string
	aggregateDate string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate a JSON file of records per calendar date",
	Long: `Reads a file holding one record, an array of records or a {"data": [...]}
envelope and prints one aggregate per calendar date as JSON.`,
	Args: cobra.NoArgs,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVarP(&aggregateType, "type", "t", "", "record type, e.g. steps or HeartRate")
	aggregateCmd.Flags().StringVarP(&aggregateFile, "file", "f", "", "path to the records file")
	aggregateCmd.Flags().StringVar(&aggregateDate, "date", "", "only print this date (YYYY-MM-DD)")
	_ = aggregateCmd.MarkFlagRequired("type")
	_ = aggregateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(aggregateCmd)
}

type dailyOutput struct {
	Date     string             `json:"date"`
	Category string             `json:"category"`
	Result   aggregation.Result `json:"result"`
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	recordType, err := domain.ValidateRecordType(aggregateType)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(aggregateFile)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	docs, err := splitFile(raw)
	if err != nil {
		return err
	}

	records := make([]aggregation.Record, 0, len(docs))
	for i, doc := range docs {
		incoming, err := domain.DecodeIncoming(doc, recordType)
		if err != nil {
			cmd.PrintErrf("skipping record %d: %v\n", i, err)
			continue
		}
		records = append(records, incoming.Record)
	}

	category := string(aggregation.Classify(recordType))
	out := make([]dailyOutput, 0)
	for _, day := range aggregation.AggregateByDate(records, recordType) {
		if aggregateDate != "" && day.Date != aggregateDate {
			continue
		}
		out = append(out, dailyOutput{Date: day.Date, Category: category, Result: day.Result})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal aggregates: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// splitFile unwraps a {"data": ...} envelope before splitting records.
func splitFile(raw []byte) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope) == 1 {
		if data, ok := envelope["data"]; ok {
			raw = data
		}
	}
	docs, err := domain.SplitRecords(raw)
	if err != nil {
		return nil, errors.New("file must hold a record, an array of records or a {\"data\": ...} envelope")
	}
	return docs, nil
}
