package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
	"github.com/TeoEchavarria/health-tech-app/internal/domain"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [recordType]",
	Short: "Print the aggregation category of a record type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordType, err := domain.ValidateRecordType(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", recordType, aggregation.Classify(recordType))
		return err
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
