package redismirror

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/store"
)

const DefaultKey = "frly:latest_updates"

type Config struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
}

// Mirror keeps the latest update of every feed in one redis hash, keyed by
// feed id.
type Mirror struct {
	client *goredis.Client
	key    string
}

var _ store.Mirror = (*Mirror)(nil)

func New(ctx context.Context, cfg Config) (*Mirror, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "failed to ping redis at %s", cfg.Addr)
	}
	return NewWithClient(rdb, cfg.Key), nil
}

func NewWithClient(client *goredis.Client, key string) *Mirror {
	if key == "" {
		key = DefaultKey
	}
	return &Mirror{client: client, key: key}
}

func (m *Mirror) Put(ctx context.Context, id feed.ID, info store.UpdateInfo) error {
	bz, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return m.client.HSet(ctx, m.key, id.String(), bz).Err()
}

// Load skips entries that no longer parse.
func (m *Mirror) Load(ctx context.Context) (map[feed.ID]store.UpdateInfo, error) {
	raw, err := m.client.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", m.key)
	}
	out := make(map[feed.ID]store.UpdateInfo, len(raw))
	for field, value := range raw {
		id, err := feed.ParseID(field)
		if err != nil {
			continue
		}
		var info store.UpdateInfo
		if err := json.Unmarshal([]byte(value), &info); err != nil {
			continue
		}
		out[id] = info
	}
	return out, nil
}

func (m *Mirror) Close() error {
	return m.client.Close()
}
