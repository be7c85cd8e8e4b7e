package levelmirror

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/store"
)

var keyPrefix = []byte("latest/")

// Mirror keeps the latest update of every feed in a local leveldb.
type Mirror struct {
	db *leveldb.DB
}

var _ store.Mirror = (*Mirror)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Mirror, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb at %s", path)
	}
	return &Mirror{db: db}, nil
}

func key(id feed.ID) []byte {
	return append(append([]byte{}, keyPrefix...), id[:]...)
}

func (m *Mirror) Put(_ context.Context, id feed.ID, info store.UpdateInfo) error {
	bz, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return m.db.Put(key(id), bz, nil)
}

func (m *Mirror) Load(_ context.Context) (map[feed.ID]store.UpdateInfo, error) {
	out := make(map[feed.ID]store.UpdateInfo)
	it := m.db.NewIterator(util.BytesPrefix(keyPrefix), nil)
	defer it.Release()
	for it.Next() {
		k := it.Key()[len(keyPrefix):]
		if len(k) != feed.IDSize {
			continue
		}
		var id feed.ID
		copy(id[:], k)
		var info store.UpdateInfo
		if err := json.Unmarshal(it.Value(), &info); err != nil {
			continue
		}
		out[id] = info
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate leveldb")
	}
	return out, nil
}

func (m *Mirror) Close() error {
	return m.db.Close()
}
