package main

import (
	"os"

	"github.com/spf13/cobra"
	configx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/config"
	logx "github.com/tanpawarit/Chative-Support-Orchestrator/pkg/logger"
)

var (
	envFile   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:               "support-orchestrator",
	Short:             "Customer support conversation orchestrator for the Chronos watch store",
	SilenceUsage:      true,
	SilenceErrors:     false,
	PersistentPreRunE: setup,
}

// setup runs before every subcommand: it selects the .env file and configures logging from LOG_*,
// with the command line taking precedence.
func setup(cmd *cobra.Command, _ []string) error {
	configx.SetEnvFile(envFile)

	conf, err := configx.New[logx.Config]("LOG")
	if err != nil {
		return err
	}
	if logLevel != "" {
		conf.Level = logLevel
	}
	if logFormat != "" {
		conf.Format = logFormat
	}
	return logx.Init(*conf)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env", "", "path to .env file (default ./.env when present)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flags.StringVar(&logFormat, "log-format", "", "log format: json or console (overrides LOG_FORMAT)")
	rootCmd.AddCommand(serveCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
