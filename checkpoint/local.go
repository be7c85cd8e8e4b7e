package checkpoint

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
)

// LocalConfig is a checkpoint directory on the local filesystem.
type LocalConfig struct {
	Path string `json:"path" yaml:"path"`
}

func (c *LocalConfig) Type() string { return "local" }

func (c *LocalConfig) Location() string {
	return "file://" + c.Path
}

// Build creates the directory if it does not exist yet.
func (c *LocalConfig) Build(_ context.Context) (Fetcher, error) {
	if err := os.MkdirAll(c.Path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create checkpoint directory %s", c.Path)
	}
	return &LocalFetcher{path: c.Path}, nil
}

type LocalFetcher struct {
	path string
}

var _ Fetcher = (*LocalFetcher)(nil)

func (f *LocalFetcher) checkpointPath(index uint32) string {
	return filepath.Join(f.path, strconv.FormatUint(uint64(index), 10)+"_with_id.json")
}

func (f *LocalFetcher) Fetch(_ context.Context, index uint32) (*SignedCheckpoint, error) {
	bz, err := os.ReadFile(f.checkpointPath(index))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read checkpoint %d", index)
	}
	return Decode(bz)
}

func (f *LocalFetcher) AnnouncementLocation() string {
	return "file://" + f.path
}
