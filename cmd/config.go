package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/pragma-labs/feed-relayer/config"
)

func configCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "manage configuration file",
		RunE:    noCommand,
	}

	cmd.AddCommand(
		configShowCmd(ctx),
		configInitCmd(ctx),
	)

	return cmd
}

// Command for inititalizing a default config at the --home location
func configInitCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Creates a default home directory at path defined by --home",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := ctx.Config.ConfigPath
			if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
				return errors.Newf("config already exists: %s", cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
				return err
			}
			bz, err := config.MarshalYAML(config.DefaultConfig(cfgPath))
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, bz, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
			return nil
		},
	}
	return cmd
}

// Command for printing current configuration
func configShowCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"s", "list", "l"},
		Short:   "Prints current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := ctx.Config.ConfigPath
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				return errors.Newf("config does not exist: %s", cfgPath)
			}

			var (
				out []byte
				err error
			)
			if jsn, _ := cmd.Flags().GetBool(flagJSON); jsn {
				out, err = config.MarshalJSON(*ctx.Config)
			} else {
				out, err = config.MarshalYAML(*ctx.Config)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return jsonFlag(cmd)
}

// initConfig reads in the config file if it exists, defaults otherwise.
func initConfig(ctx *config.Context) error {
	cfgPath := configPath()
	cfg := config.DefaultConfig(cfgPath)
	if _, err := os.Stat(cfgPath); err == nil {
		file, err := os.ReadFile(cfgPath)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", cfgPath)
		}
		if err := config.UnmarshalYAML(file, &cfg); err != nil {
			return errors.Wrapf(err, "failed to parse %s", cfgPath)
		}
	}
	ctx.Config = &cfg
	return nil
}
