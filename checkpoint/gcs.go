package checkpoint

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"google.golang.org/api/option"
)

// GCSConfig is a Google Cloud Storage bucket. Without credentials the bucket
// is read anonymously.
type GCSConfig struct {
	Bucket            string `json:"bucket" yaml:"bucket"`
	Folder            string `json:"folder,omitempty" yaml:"folder,omitempty"`
	ServiceAccountKey string `json:"-" yaml:"-"`
	UserSecrets       string `json:"-" yaml:"-"`
	// Endpoint overrides the storage API endpoint.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

func (c *GCSConfig) Type() string { return "gcs" }

func (c *GCSConfig) Location() string {
	if c.Folder == "" {
		return "gs://" + c.Bucket
	}
	return "gs://" + c.Bucket + "/" + c.Folder
}

func (c *GCSConfig) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case c.ServiceAccountKey != "":
		opts = append(opts, option.WithCredentialsFile(c.ServiceAccountKey))
	case c.UserSecrets != "":
		opts = append(opts, option.WithCredentialsFile(c.UserSecrets))
	default:
		opts = append(opts, option.WithoutAuthentication())
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	return opts
}

func (c *GCSConfig) Build(ctx context.Context) (Fetcher, error) {
	client, err := storage.NewClient(ctx, c.clientOptions()...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create GCS client for %s", c.Location())
	}
	return &GCSFetcher{bucket: client.Bucket(c.Bucket), config: *c}, nil
}

type GCSFetcher struct {
	bucket *storage.BucketHandle
	config GCSConfig
}

var _ Fetcher = (*GCSFetcher)(nil)

func (f *GCSFetcher) Fetch(ctx context.Context, index uint32) (*SignedCheckpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	key := objectKey(f.config.Folder, index)
	r, err := f.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to open gs://%s/%s", f.config.Bucket, key)
	}
	defer r.Close()

	bz, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read gs://%s/%s", f.config.Bucket, key)
	}
	return Decode(bz)
}

func (f *GCSFetcher) AnnouncementLocation() string {
	return f.config.Location()
}
