package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pragma-labs/feed-relayer/config"
	"github.com/pragma-labs/feed-relayer/internal/telemetry"
	"github.com/pragma-labs/feed-relayer/log"
)

const (
	appName    = "frly"
	envPrefix  = "FRLY"
	configDir  = "config"
	configFile = "config.yaml"

	flagHome     = "home"
	flagLogLevel = "log-level"
)

var (
	homePath    string
	defaultHome = os.ExpandEnv("$HOME/.frly")

	telemetryShutdown func(context.Context) error
)

func configPath() string {
	return filepath.Join(homePath, configDir, configFile)
}

// NewRootCmd builds the frly command tree.
func NewRootCmd() *cobra.Command {
	ctx := &config.Context{}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "This application relays Pragma feed updates dispatched through Hyperlane",
		Long: strings.TrimSpace(`frly indexes the Pragma dispatches of a Starknet mailbox, correlates them
with the checkpoints signed by Hyperlane validators and serves the calldata
destination chains need to verify an update.`),
	}
	cobra.EnableCommandSorting = false
	rootCmd.SilenceUsage = true

	// Register top level flags --home and --log-level
	rootCmd.PersistentFlags().StringVar(&homePath, flagHome, defaultHome, "set home directory")
	rootCmd.PersistentFlags().String(flagLogLevel, "", "override the configured log level")
	if err := viper.BindPFlag(flagHome, rootCmd.PersistentFlags().Lookup(flagHome)); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag(flagLogLevel, rootCmd.PersistentFlags().Lookup(flagLogLevel)); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		homePath = viper.GetString(flagHome)
		// reads `homeDir/config/config.yaml` into `ctx.Config` before each command
		if err := initConfig(ctx); err != nil {
			return err
		}
		return initLogger(cmd.Context(), ctx.Config.Global)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		if telemetryShutdown == nil {
			return nil
		}
		err := telemetryShutdown(cmd.Context())
		telemetryShutdown = nil
		return err
	}

	rootCmd.AddCommand(
		configCmd(ctx),
		serviceCmd(ctx),
		feedCmd(),
		checkpointCmd(),
	)
	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

func initLogger(ctx context.Context, global config.GlobalConfig) error {
	if global.EnableTelemetry {
		shutdown, err := telemetry.SetupOTelSDK(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to set up the OpenTelemetry SDK")
		}
		telemetryShutdown = shutdown
	}
	level := global.LogLevel
	if override := viper.GetString(flagLogLevel); override != "" {
		level = override
	}
	return log.InitLogger(level, global.LogFormat, global.LogOutput, global.EnableTelemetry)
}

func noCommand(cmd *cobra.Command, _ []string) error {
	return cmd.Help()
}
