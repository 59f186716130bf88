package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fxrec/internal/app"
)

var (
	auditDateFormat string
	auditThreshold  float64
	auditTesting    bool
	auditInvert     bool
	auditCSVPath    string
	auditQuiet      bool
	auditTemplate   string
)

var auditCmd = &cobra.Command{
	Use:   "audit [FILE]",
	Short: "Reconcile recorded rates in a CSV or XLSX file",
	Example: `  fxrec audit rates.xlsx --date-format DD/MM/YYYY --threshold 2.5
  fxrec audit --template audit_template.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		if auditTemplate != "" {
			if err := a.Template(auditTemplate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template written to %s\n", auditTemplate)
			return nil
		}
		if len(args) == 0 {
			return errors.New("an input file is required unless --template is given")
		}

		opts := app.AuditOptions{
			Path:        args[0],
			DateFormat:  auditDateFormat,
			TestingMode: auditTesting,
			Invert:      auditInvert,
			Credential:  credential,
			CSVPath:     auditCSVPath,
			Quiet:       auditQuiet,
		}
		if cmd.Flags().Changed("threshold") {
			if auditThreshold < 0 {
				return fmt.Errorf("--threshold cannot be negative")
			}
			opts.Threshold = &auditThreshold
		}
		return a.Audit(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditDateFormat, "date-format", "", "Declared date format, e.g. DD/MM/YYYY (defaults to config)")
	auditCmd.Flags().Float64Var(&auditThreshold, "threshold", 0, "Variance threshold in percent (defaults to config)")
	auditCmd.Flags().BoolVar(&auditTesting, "testing", false, "Use synthetic rates instead of the provider")
	auditCmd.Flags().BoolVar(&auditInvert, "invert", false, "Reciprocate reference rates before scoring")
	auditCmd.Flags().StringVar(&auditCSVPath, "csv", "", "Path to write the audited rows")
	auditCmd.Flags().BoolVar(&auditQuiet, "quiet", false, "Only print the final event")
	auditCmd.Flags().StringVar(&auditTemplate, "template", "", "Write an empty audit template to this path and exit")
}
