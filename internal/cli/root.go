package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fxrec/internal/app"
	"fxrec/internal/config"
	"fxrec/internal/logging"
)

var (
	cfgFile    string
	logLevel   string
	credential string
	appHandle  *app.App
)

var rootCmd = &cobra.Command{
	Use:           "fxrec",
	Short:         "Resolve FX rate baskets and audit recorded rates against Twelve Data",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().StringVar(&credential, "api-key", "", "Twelve Data API key (defaults to provider.api_key)")

	rootCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
