package checkpoint

//go:generate mockgen -source=fetcher.go -destination=fetcher_mock.go -package checkpoint

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// RequestTimeout bounds every remote fetch.
const RequestTimeout = 30 * time.Second

const (
	// env vars holding paths to GCS credentials
	GCSServiceAccountKeyEnv = "GCS_SERVICE_ACCOUNT_KEY"
	GCSUserSecretEnv        = "GCS_USER_SECRET"
)

var ErrInvalidStorageLocation = errors.New("invalid storage location")

// Fetcher reads the signed checkpoints a validator publishes.
type Fetcher interface {
	// Fetch returns nil without error when no checkpoint exists at index.
	Fetch(ctx context.Context, index uint32) (*SignedCheckpoint, error)
	// AnnouncementLocation returns the storage location in announcement form.
	AnnouncementLocation() string
}

// StorageConfig describes where a validator publishes checkpoints.
type StorageConfig interface {
	// Build creates a fetcher; it does not check that any checkpoint exists.
	Build(ctx context.Context) (Fetcher, error)
	Location() string
	Type() string
}

var (
	_ StorageConfig = (*LocalConfig)(nil)
	_ StorageConfig = (*S3Config)(nil)
	_ StorageConfig = (*GCSConfig)(nil)
)

// ParseStorageConfig parses an announced storage location:
//
//	file://<path>
//	s3://<bucket>/<region>[/<folder>]
//	gs://<bucket>[/<folder>]
func ParseStorageConfig(location string) (StorageConfig, error) {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return nil, errors.Wrapf(ErrInvalidStorageLocation, "%q has no scheme", location)
	}
	switch scheme {
	case "file":
		if rest == "" {
			return nil, errors.Wrapf(ErrInvalidStorageLocation, "%q has no path", location)
		}
		return &LocalConfig{Path: rest}, nil
	case "s3":
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Wrapf(ErrInvalidStorageLocation, "%q: expected s3://bucket/region[/folder]", location)
		}
		c := &S3Config{Bucket: parts[0], Region: parts[1]}
		if len(parts) == 3 {
			c.Folder = strings.Trim(parts[2], "/")
		}
		return c, nil
	case "gs":
		bucket, folder, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, errors.Wrapf(ErrInvalidStorageLocation, "%q: expected gs://bucket[/folder]", location)
		}
		return &GCSConfig{
			Bucket:            bucket,
			Folder:            strings.Trim(folder, "/"),
			ServiceAccountKey: os.Getenv(GCSServiceAccountKeyEnv),
			UserSecrets:       os.Getenv(GCSUserSecretEnv),
		}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidStorageLocation, "unknown scheme %q", scheme)
	}
}

// objectKey is the key of checkpoint index in a bucket, below folder.
func objectKey(folder string, index uint32) string {
	key := fmt.Sprintf("checkpoint_%d_with_id.json", index)
	if folder == "" {
		return key
	}
	return folder + "/" + key
}
