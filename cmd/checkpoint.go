package cmd

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/pragma-labs/feed-relayer/checkpoint"
)

func checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "inspect validator checkpoint storage",
		RunE:  noCommand,
	}
	cmd.AddCommand(
		checkpointFetchCmd(),
	)
	return cmd
}

func checkpointFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fetch [storage-location] [index]",
		Short:   "Fetches the signed checkpoint a validator published at index",
		Example: "frly checkpoint fetch s3://hyperlane-validator-signatures/us-east-1 42",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return errors.Wrapf(err, "invalid index %q", args[1])
			}
			timeout, err := cmd.Flags().GetDuration(flagTimeout)
			if err != nil {
				return err
			}
			sc, err := checkpoint.ParseStorageConfig(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			fetcher, err := sc.Build(ctx)
			if err != nil {
				return err
			}
			signed, err := fetcher.Fetch(ctx, uint32(index))
			if err != nil {
				return err
			}
			if signed == nil {
				return errors.Newf("no checkpoint at index %d in %s", index, fetcher.AnnouncementLocation())
			}
			return printJSON(cmd, signed)
		},
	}
	return timeoutFlag(cmd)
}
