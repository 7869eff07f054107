package client

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/primlo/nibbana/internal/config"
	"github.com/primlo/nibbana/internal/runtime"
	logpkg "github.com/primlo/nibbana/pkg/log"
)

// NewRoot constructs the root Cobra command with every subcommand
// registered.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "nibbana",
		Short:         "Buffer telemetry locally and upload it to a collector",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", "", "Config file (JSON or YAML)")
	root.PersistentFlags().String("data-dir", "", "Data directory (defaults to the OS application data directory)")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", "", "Log format: text|json")

	root.AddCommand(
		newLogCommand(),
		newEventCommand(),
		newIdentifyCommand(),
		newPendingCommand(),
		newFlushCommand(),
		newClearCommand(),
		newPropsCommand(),
		newPipeCommand(),
	)
	return root
}

// loadConfig layers defaults, the config file, NIBBANA_* env vars and the
// persistent flags, in that order.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	return cfg, cfg.Validate()
}

// withRuntime opens the runtime for one command and closes it afterwards.
// Entries recorded from the CLI are not echoed unless the config asks for it.
func withRuntime(cmd *cobra.Command, fn func(*runtime.Runtime) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.OutputToConsole == nil {
		off := false
		cfg.OutputToConsole = &off
	}
	logger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	// net/http reports server errors through the standard library logger.
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(cmd.Context(), runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DataDir, err)
	}
	defer rt.Close()
	return fn(rt)
}
