package calldata

import (
	"encoding/binary"
	"encoding/hex"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/log"
	"github.com/pragma-labs/feed-relayer/store"
)

const (
	MajorVersion       = 1
	MinorVersion       = 0
	TrailingHeaderSize = 0
	HyperlaneVersion   = 3
	// MaxSigners is the most signers the one-byte signers_len can carry.
	MaxSigners = 255
)

var (
	ErrDispatchNotFound       = errors.New("no correlated dispatch for feed")
	ErrChainNotSupported      = errors.New("destination chain is not supported")
	ErrValidatorNotFound      = errors.New("no signature from the destination validator set")
	ErrInconsistentCheckpoint = errors.New("validators signed inconsistent checkpoints")
	ErrTooManySigners         = errors.New("too many signers for the calldata layout")
	ErrInvalidFeedID          = feed.ErrInvalidFeedID
)

// ValidatorSet maps the validators trusted by a destination chain to their
// on-chain index.
type ValidatorSet map[hyperlane.EthAddress]uint8

// ValidatorSets holds one validator set per destination chain name.
type ValidatorSets map[string]ValidatorSet

// Chains returns the supported chain names in order.
func (s ValidatorSets) Chains() []string {
	chains := make([]string, 0, len(s))
	for c := range s {
		chains = append(chains, c)
	}
	slices.Sort(chains)
	return chains
}

// Signer is a validator signature with the validator's on-chain index.
type Signer struct {
	ValidatorIndex uint8                `json:"validator_index"`
	Validator      hyperlane.EthAddress `json:"validator"`
	Signature      checkpoint.Signature `json:"signature"`
}

// Calldata is the payload verified by the destination chain for one feed
// update.
type Calldata struct {
	Signers        []Signer                           `json:"signers"`
	Nonce          uint32                             `json:"nonce"`
	EmitterChainID uint32                             `json:"emitter_chain_id"`
	EmitterAddress hyperlane.U256                     `json:"emitter_address"`
	Checkpoint     checkpoint.CheckpointWithMessageID `json:"checkpoint"`
	UpdateData     hexBytes                           `json:"update_data"`
	FeedID         hyperlane.U256                     `json:"feed_id"`
	PublishTime    uint64                             `json:"publish_time"`
}

type hexBytes []byte

func (h hexBytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(h)), nil
}

// Bytes serialises the calldata, every integer in big-endian order:
//
//	major:1 minor:1 trailing_header_size:1 hyperlane_msg_size:2
//	hyperlane_version:1 signers_len:1 (validator_index:1 signature:65)*
//	nonce:4 emitter_chain_id:4 emitter_address:32
//	merkle_tree_hook_address:32 root:32 checkpoint_index:4 message_id:32
//	num_updates:1 update_data_len:2 proof_len:2 proof update_data feed_id:32 publish_time:8
func (c *Calldata) Bytes() []byte {
	msg := make([]byte, 0, 2+len(c.Signers)*(1+checkpoint.SignatureSize)+40+100+5+len(c.UpdateData)+40)
	msg = append(msg, HyperlaneVersion, byte(len(c.Signers)))
	for _, s := range c.Signers {
		sig := s.Signature.Bytes()
		msg = append(msg, s.ValidatorIndex)
		msg = append(msg, sig[:]...)
	}
	msg = binary.BigEndian.AppendUint32(msg, c.Nonce)
	msg = binary.BigEndian.AppendUint32(msg, c.EmitterChainID)
	msg = append(msg, c.EmitterAddress[:]...)

	cp := c.Checkpoint
	msg = append(msg, cp.Checkpoint.MerkleTreeHookAddress[:]...)
	msg = append(msg, cp.Checkpoint.Root[:]...)
	msg = binary.BigEndian.AppendUint32(msg, cp.Checkpoint.Index)
	msg = append(msg, cp.MessageID[:]...)

	msg = append(msg, 1) // num_updates
	msg = binary.BigEndian.AppendUint16(msg, uint16(len(c.UpdateData)))
	msg = binary.BigEndian.AppendUint16(msg, 0) // proof_len
	msg = append(msg, c.UpdateData...)
	msg = append(msg, c.FeedID[:]...)
	msg = binary.BigEndian.AppendUint64(msg, c.PublishTime)

	out := make([]byte, 0, 5+len(msg))
	out = append(out, MajorVersion, MinorVersion, TrailingHeaderSize)
	out = binary.BigEndian.AppendUint16(out, uint16(len(msg)))
	return append(out, msg...)
}

func (c *Calldata) Hex() string {
	return "0x" + hex.EncodeToString(c.Bytes())
}

// Builder assembles calldata from the correlated state. It only reads the
// stores.
type Builder struct {
	storage *store.Storage
	sets    ValidatorSets
}

func NewBuilder(storage *store.Storage, sets ValidatorSets) *Builder {
	return &Builder{storage: storage, sets: sets}
}

func (b *Builder) ValidatorSets() ValidatorSets {
	return b.sets
}

// BuildFromHex parses a feed id in any accepted hex form and builds its
// calldata.
func (b *Builder) BuildFromHex(feedID, chain string) (*Calldata, error) {
	id, err := feed.ParseID(feedID)
	if err != nil {
		return nil, err
	}
	return b.Build(id, chain)
}

// Build returns the calldata relaying the latest update of id to chain.
func (b *Builder) Build(id feed.ID, chain string) (*Calldata, error) {
	info, ok := b.storage.Latest.Get(id)
	if !ok {
		return nil, errors.Wrapf(ErrDispatchNotFound, "feed %s", id)
	}
	set, ok := b.sets[chain]
	if !ok {
		return nil, errors.Wrapf(ErrChainNotSupported, "chain %q", chain)
	}
	compactID, err := id.Uint256()
	if err != nil {
		return nil, err
	}

	validators := make([]hyperlane.EthAddress, 0, len(set))
	for v := range set {
		validators = append(validators, v)
	}
	found := b.storage.Signed.ForNonce(validators, info.Nonce)
	if len(found) == 0 {
		return nil, errors.Wrapf(ErrValidatorNotFound, "nonce %d on chain %q", info.Nonce, chain)
	}
	if len(found) > MaxSigners {
		return nil, errors.Wrapf(ErrTooManySigners, "%d signers on chain %q", len(found), chain)
	}

	signers := make([]Signer, 0, len(found))
	var reference *checkpoint.SignedCheckpoint
	for v, sc := range found {
		if reference == nil {
			reference = sc
		} else if sc.Root() != reference.Root() || sc.MessageID() != reference.MessageID() {
			err := errors.Wrapf(ErrInconsistentCheckpoint, "nonce %d", info.Nonce)
			log.GetLogger().WithModule("calldata").WithChain(chain).WithNonce(info.Nonce).Error(
				"validators disagree on the signed checkpoint", err,
				"root", reference.Root().String(),
				"other_root", sc.Root().String(),
				"validator", v.String(),
			)
			return nil, err
		}
		signers = append(signers, Signer{ValidatorIndex: set[v], Validator: v, Signature: sc.Signature})
	}
	if reference.MessageID() != info.MessageID {
		err := errors.Wrapf(ErrInconsistentCheckpoint, "nonce %d signs message %s, dispatch is %s",
			info.Nonce, reference.MessageID(), info.MessageID)
		log.GetLogger().WithModule("calldata").WithChain(chain).WithNonce(info.Nonce).Error(
			"signed message id does not match the dispatch", err,
		)
		return nil, err
	}
	slices.SortFunc(signers, func(a, b Signer) int {
		if a.ValidatorIndex != b.ValidatorIndex {
			return int(a.ValidatorIndex) - int(b.ValidatorIndex)
		}
		return slices.Compare(a.Validator[:], b.Validator[:])
	})

	return &Calldata{
		Signers:        signers,
		Nonce:          info.Nonce,
		EmitterChainID: info.EmitterChainID,
		EmitterAddress: info.EmitterAddress,
		Checkpoint:     reference.Value,
		UpdateData:     info.Update.Bytes(),
		FeedID:         hyperlane.U256(compactID),
		PublishTime:    info.Update.PublishTime(),
	}, nil
}
