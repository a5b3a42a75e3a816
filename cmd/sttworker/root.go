package main

import (
	"os"

	"github.com/spf13/cobra"

	"sttworker/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{configPath: os.Getenv("STTWORKER_CONFIG")}
	root := &cobra.Command{
		Use:           "sttworker",
		Short:         "Speech-to-text worker for the Nextcloud task processing queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", flags.configPath, "Config file (.yaml, .json or .toml; defaults STTWORKER_CONFIG)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override: debug|info|warn|error")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane and the task loop (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	models := &cobra.Command{
		Use:   "models",
		Short: "List the models found in the model directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return runModels(cmd, flags, asJSON)
		},
	}
	models.Flags().Bool("json", false, "Print JSON instead of a table")
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("sttworker", version)
		},
	}
	root.AddCommand(serve, models, versionCmd)
	return root
}

// loadConfig reads the config file and applies the --log-level override.
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}
