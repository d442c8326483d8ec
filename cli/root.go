package cli

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roundslab/rounds/pkg/config"
	"github.com/roundslab/rounds/pkg/logger"
	"github.com/roundslab/rounds/pkg/version"
)

type ctxKey int

const appKey ctxKey = iota

// app carries the loaded configuration from root setup to the subcommands.
type app struct {
	cfg     *config.Config
	manager *config.Manager
}

func fromCommand(cmd *cobra.Command) (*app, error) {
	a, ok := cmd.Context().Value(appKey).(*app)
	if !ok || a == nil {
		return nil, fmt.Errorf("command executed without root setup")
	}
	return a, nil
}

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rounds",
		Short:         "Rounds clinical assistant engine",
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file (default rounds.yaml when present)")
	root.PersistentFlags().String("env-file", "", "load environment variables from this file before config")
	root.PersistentFlags().String("log-level", "", "override the configured log level")
	root.PersistentFlags().Bool("log-json", false, "emit JSON logs")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
		return nil
	}

	root.AddCommand(
		RunCmd(),
		ChatCmd(),
		ToolsCmd(),
	)
	return root
}

func setup(cmd *cobra.Command) (*app, error) {
	if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		// A local .env is a convenience, not a requirement.
		_ = godotenv.Load()
	}

	var sources []config.Source
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		sources = append(sources, config.NewYAMLProvider(path))
	} else {
		sources = append(sources, config.NewOptionalYAMLProvider("rounds.yaml"))
	}
	sources = append(sources, config.NewEnvProvider())

	manager := config.NewManager(config.NewService())
	cfg, err := manager.Load(cmd.Context(), sources...)
	if err != nil {
		return nil, err
	}
	applyLogFlags(cmd, cfg)
	if err := logger.Init(loggerConfig(cfg)); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, manager: manager}, nil
}

func applyLogFlags(cmd *cobra.Command, cfg *config.Config) {
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Runtime.LogLevel = level
	}
	if cmd.Flags().Changed("log-json") {
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		cfg.Runtime.LogJSON = jsonOut
	}
}

func loggerConfig(cfg *config.Config) *logger.Config {
	out := logger.DefaultConfig()
	out.Level = logger.ParseLevel(cfg.Runtime.LogLevel)
	out.JSON = cfg.Runtime.LogJSON
	out.AddSource = cfg.Runtime.LogSource
	return out
}
