package config

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/pragma-labs/feed-relayer/calldata"
	"github.com/pragma-labs/feed-relayer/core"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/indexer"
	natsclient "github.com/pragma-labs/feed-relayer/pubsub/nats"
	"github.com/pragma-labs/feed-relayer/store"
	"github.com/pragma-labs/feed-relayer/store/redismirror"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Global       GlobalConfig                `yaml:"global" json:"global"`
	Source       SourceConfig                `yaml:"source" json:"source"`
	Stream       StreamConfig                `yaml:"stream" json:"stream"`
	Destinations map[string]map[string]uint8 `yaml:"destinations" json:"destinations"`
	Bootstrap    []ValidatorConfig           `yaml:"bootstrap" json:"bootstrap"`
	API          APIConfig                   `yaml:"api" json:"api"`
	Broadcast    BroadcastConfig             `yaml:"broadcast" json:"broadcast"`
	Mirror       MirrorConfig                `yaml:"mirror" json:"mirror"`
	Metrics      MetricsConfig               `yaml:"metrics" json:"metrics"`

	// ConfigPath is the file the config was read from.
	ConfigPath string `yaml:"-" json:"-"`
}

type GlobalConfig struct {
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	LogFormat       string        `yaml:"log_format" json:"log_format"`
	LogOutput       string        `yaml:"log_output" json:"log_output"`
	EnableTelemetry bool          `yaml:"enable_telemetry" json:"enable_telemetry"`
	RelayInterval   time.Duration `yaml:"relay_interval" json:"relay_interval"`
	RetentionTTL    time.Duration `yaml:"retention_ttl" json:"retention_ttl"`
	RetentionMax    int           `yaml:"retention_max_entries" json:"retention_max_entries"`
	JanitorInterval time.Duration `yaml:"janitor_interval" json:"janitor_interval"`
}

// SourceConfig names the Starknet contracts whose events are indexed. Empty
// addresses accept events from any contract.
type SourceConfig struct {
	Domain            uint32 `yaml:"domain" json:"domain"`
	Mailbox           string `yaml:"mailbox" json:"mailbox"`
	ValidatorAnnounce string `yaml:"validator_announce" json:"validator_announce"`
	FeedRegistry      string `yaml:"feed_registry" json:"feed_registry"`
	AllowLocalStorage bool   `yaml:"allow_local_storage" json:"allow_local_storage"`
}

type StreamConfig struct {
	NATS     natsclient.Config `yaml:"nats" json:"nats"`
	Capacity int               `yaml:"capacity" json:"capacity"`
}

type ValidatorConfig struct {
	Validator       string `yaml:"validator" json:"validator"`
	StorageLocation string `yaml:"storage_location" json:"storage_location"`
}

type APIConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
}

// BroadcastConfig publishes feeds updates to NATS when URL is set. The
// in-process hub serving the calldata stream is always enabled.
type BroadcastConfig struct {
	NATS natsclient.Config `yaml:"nats" json:"nats"`
}

const (
	MirrorNone    = ""
	MirrorRedis   = "redis"
	MirrorLevelDB = "leveldb"
)

type MirrorConfig struct {
	Type    string             `yaml:"type" json:"type"`
	Redis   redismirror.Config `yaml:"redis" json:"redis"`
	LevelDB LevelDBConfig      `yaml:"leveldb" json:"leveldb"`
}

type LevelDBConfig struct {
	Path string `yaml:"path" json:"path"`
}

const (
	MetricsExporterNull       = "null"
	MetricsExporterPrometheus = "prometheus"
)

type MetricsConfig struct {
	Exporter       string `yaml:"exporter" json:"exporter"`
	PrometheusAddr string `yaml:"prometheus_addr" json:"prometheus_addr"`
}

func DefaultConfig(configPath string) Config {
	return Config{
		Global:       newDefaultGlobalConfig(),
		Stream:       StreamConfig{NATS: natsclient.Config{Subject: indexer.DefaultStreamSubject}, Capacity: indexer.DefaultStreamCapacity},
		Destinations: map[string]map[string]uint8{},
		Bootstrap:    []ValidatorConfig{},
		API:          APIConfig{Enabled: true, ListenAddress: "localhost:3000"},
		Broadcast:    BroadcastConfig{NATS: natsclient.Config{Subject: natsclient.DefaultSubject}},
		Metrics:      MetricsConfig{Exporter: MetricsExporterNull, PrometheusAddr: "localhost:2223"},
		ConfigPath:   configPath,
	}
}

// newDefaultGlobalConfig returns a global config with defaults set
func newDefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		LogLevel:        "info",
		LogFormat:       "json",
		LogOutput:       "stderr",
		RelayInterval:   core.DefaultRelayInterval,
		RetentionTTL:    store.DefaultRetentionTTL,
		RetentionMax:    store.DefaultRetentionMaxEntries,
		JanitorInterval: store.DefaultJanitorInterval,
	}
}

// Validate checks every field that is parsed lazily by the accessors below.
func (c *Config) Validate() error {
	var errs error
	if c.Stream.NATS.URL == "" {
		errs = errors.CombineErrors(errs, errors.Wrap(ErrInvalidConfig, "stream.nats.url is required"))
	}
	if _, err := c.IndexerConfig(); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	if _, err := c.ValidatorSets(); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	if _, err := c.Announcements(); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	switch c.Mirror.Type {
	case MirrorNone:
	case MirrorRedis:
		if c.Mirror.Redis.Addr == "" {
			errs = errors.CombineErrors(errs, errors.Wrap(ErrInvalidConfig, "mirror.redis.addr is required"))
		}
	case MirrorLevelDB:
		if c.Mirror.LevelDB.Path == "" {
			errs = errors.CombineErrors(errs, errors.Wrap(ErrInvalidConfig, "mirror.leveldb.path is required"))
		}
	default:
		errs = errors.CombineErrors(errs, errors.Wrapf(ErrInvalidConfig, "unknown mirror type %q", c.Mirror.Type))
	}
	switch c.Metrics.Exporter {
	case "", MetricsExporterNull, MetricsExporterPrometheus:
	default:
		errs = errors.CombineErrors(errs, errors.Wrapf(ErrInvalidConfig, "unknown metrics exporter %q", c.Metrics.Exporter))
	}
	if c.API.Enabled && c.API.ListenAddress == "" {
		errs = errors.CombineErrors(errs, errors.Wrap(ErrInvalidConfig, "api.listen_address is required"))
	}
	return errs
}

func parseContract(field, s string) (hyperlane.Felt, error) {
	if s == "" {
		return hyperlane.Felt{}, nil
	}
	f, err := hyperlane.ParseFelt(s)
	if err != nil {
		return hyperlane.Felt{}, errors.Mark(errors.Wrapf(err, "%s", field), ErrInvalidConfig)
	}
	return f, nil
}

func (c *Config) IndexerConfig() (indexer.Config, error) {
	mailbox, err := parseContract("source.mailbox", c.Source.Mailbox)
	if err != nil {
		return indexer.Config{}, err
	}
	announce, err := parseContract("source.validator_announce", c.Source.ValidatorAnnounce)
	if err != nil {
		return indexer.Config{}, err
	}
	registry, err := parseContract("source.feed_registry", c.Source.FeedRegistry)
	if err != nil {
		return indexer.Config{}, err
	}
	return indexer.Config{
		Mailbox:           mailbox,
		ValidatorAnnounce: announce,
		FeedRegistry:      registry,
		AllowLocalStorage: c.Source.AllowLocalStorage,
	}, nil
}

// ValidatorSets returns the destination validator sets. Indices must be
// unique within a chain.
func (c *Config) ValidatorSets() (calldata.ValidatorSets, error) {
	sets := make(calldata.ValidatorSets, len(c.Destinations))
	for chain, validators := range c.Destinations {
		set := make(calldata.ValidatorSet, len(validators))
		seen := make(map[uint8]string, len(validators))
		for raw, idx := range validators {
			addr, err := hyperlane.ParseEthAddress(raw)
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "destinations.%s", chain), ErrInvalidConfig)
			}
			if other, ok := seen[idx]; ok {
				return nil, errors.Wrapf(ErrInvalidConfig, "destinations.%s: index %d used by %s and %s", chain, idx, other, raw)
			}
			seen[idx] = raw
			set[addr] = idx
		}
		sets[chain] = set
	}
	return sets, nil
}

func (c *Config) Announcements() ([]indexer.Announcement, error) {
	out := make([]indexer.Announcement, 0, len(c.Bootstrap))
	for i, v := range c.Bootstrap {
		addr, err := hyperlane.ParseEthAddress(v.Validator)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "bootstrap[%d]", i), ErrInvalidConfig)
		}
		if v.StorageLocation == "" {
			return nil, errors.Wrapf(ErrInvalidConfig, "bootstrap[%d]: storage_location is required", i)
		}
		out = append(out, indexer.Announcement{Validator: addr, Location: v.StorageLocation})
	}
	return out, nil
}

func (c *Config) Retention() store.Retention {
	return store.Retention{
		TTL:        c.Global.RetentionTTL,
		MaxEntries: c.Global.RetentionMax,
		Every:      c.Global.JanitorInterval,
	}
}
