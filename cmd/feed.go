package cmd

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pragma-labs/feed-relayer/feed"
)

func feedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "encode and decode feed ids",
		RunE:  noCommand,
	}
	cmd.AddCommand(
		feedEncodeCmd(),
		feedDecodeCmd(),
	)
	return cmd
}

type feedOutput struct {
	feed.Feed
	ID      string `json:"id"`
	Compact string `json:"compact"`
}

func newFeedOutput(id feed.ID) (feedOutput, error) {
	f, err := feed.DecodeID(id)
	if err != nil {
		return feedOutput{}, err
	}
	return feedOutput{
		Feed:    f,
		ID:      id.String(),
		Compact: "0x" + hex.EncodeToString(id.Compact()),
	}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(bz))
	return nil
}

// parseFeedType accepts a two letter code such as SM or a decimal value.
func parseFeedType(s string) (feed.FeedType, error) {
	var t feed.FeedType
	if len(s) == 2 {
		t = feed.FeedType(binary.BigEndian.Uint16([]byte(strings.ToUpper(s))))
	} else {
		v, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, errors.Wrapf(feed.ErrInvalidFeedID, "feed type %q", s)
		}
		t = feed.FeedType(v)
	}
	if !t.Valid() {
		return 0, errors.Wrapf(feed.ErrInvalidFeedID, "unknown feed type %q", s)
	}
	return t, nil
}

// feedTypeValue is a --feed-type flag.
type feedTypeValue feed.FeedType

var _ pflag.Value = (*feedTypeValue)(nil)

func (v *feedTypeValue) String() string {
	var code [2]byte
	binary.BigEndian.PutUint16(code[:], uint16(*v))
	return string(code[:])
}

func (v *feedTypeValue) Set(s string) error {
	t, err := parseFeedType(s)
	if err != nil {
		return err
	}
	*v = feedTypeValue(t)
	return nil
}

func (v *feedTypeValue) Type() string { return "feedType" }

func feedEncodeCmd() *cobra.Command {
	feedType := feedTypeValue(feed.FeedTypeSpotMedian)
	cmd := &cobra.Command{
		Use:     "encode [pair-id]",
		Short:   "Prints the feed id of a pair",
		Example: "frly feed encode BTC/USD --feed-type SM",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetClass, err := cmd.Flags().GetUint8(flagAssetClass)
			if err != nil {
				return err
			}
			id, err := feed.Encode(feed.AssetClass(assetClass), feed.FeedType(feedType), args[0])
			if err != nil {
				return err
			}
			out, err := newFeedOutput(id)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().Uint8(flagAssetClass, uint8(feed.AssetClassCrypto), "asset class of the feed")
	cmd.Flags().Var(&feedType, flagFeedType, "feed type, as a two letter code or a number")
	return cmd
}

func feedDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [feed-id]",
		Short: "Prints the components of a feed id, canonical or compact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := feed.ParseID(args[0])
			if err != nil {
				return err
			}
			out, err := newFeedOutput(id)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	return cmd
}
