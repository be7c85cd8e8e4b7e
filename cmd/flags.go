package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagJSON           = "json"
	flagRelayInterval  = "relay-interval"
	flagPrometheusAddr = "prometheus-addr"
	flagAPIAddr        = "api-addr"
	flagAssetClass     = "asset-class"
	flagFeedType       = "feed-type"
	flagTimeout        = "timeout"
)

func jsonFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagJSON, "j", false, "returns the response in json format")
	return cmd
}

func relayIntervalFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Duration(flagRelayInterval, 0, "time interval between correlation ticks, overrides global.relay_interval")
	if err := viper.BindPFlag(flagRelayInterval, cmd.Flags().Lookup(flagRelayInterval)); err != nil {
		panic(err)
	}
	return cmd
}

func prometheusAddrFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagPrometheusAddr, "", "host address to which the prometheus exporter listens, enables the exporter")
	if err := viper.BindPFlag(flagPrometheusAddr, cmd.Flags().Lookup(flagPrometheusAddr)); err != nil {
		panic(err)
	}
	return cmd
}

func apiAddrFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagAPIAddr, "", "address the API server listens on, overrides api.listen_address")
	if err := viper.BindPFlag(flagAPIAddr, cmd.Flags().Lookup(flagAPIAddr)); err != nil {
		panic(err)
	}
	return cmd
}

func timeoutFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().DurationP(flagTimeout, "o", 30*time.Second, "timeout of the operation")
	return cmd
}
