package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/reunite/internal/config"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reunite",
	Short: "Match surveillance frames against missing persons and alert their handlers",
	Long: `Reunite keeps a gallery of enrolled missing persons, matches incoming
camera frames against it and notifies the responsible handler, the registered
contact and the nearest stations when a person is recognized.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the environment and installs the root logger.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	if level, err := cmd.Flags().GetString("log-level"); err == nil && level != "" {
		cfg.Log.Level = level
	}
	logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return cfg
}
