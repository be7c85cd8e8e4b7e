package checkpoint

import (
	"context"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/cockroachdb/errors"
)

// S3Config is a public bucket read with anonymous credentials.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Region string `json:"region" yaml:"region"`
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty"`
	// Endpoint overrides the AWS endpoint for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

func (c *S3Config) Type() string { return "s3" }

func (c *S3Config) Location() string {
	if c.Folder == "" {
		return "s3://" + c.Bucket + "/" + c.Region
	}
	return "s3://" + c.Bucket + "/" + c.Region + "/" + c.Folder
}

func (c *S3Config) Build(_ context.Context) (Fetcher, error) {
	cfg := &aws.Config{
		Region: aws.String(c.Region),
		// signing with an unrelated account is rejected by some public buckets
		Credentials: credentials.AnonymousCredentials,
		HTTPClient:  &http.Client{Timeout: RequestTimeout},
	}
	if c.Endpoint != "" {
		cfg.Endpoint = aws.String(c.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create S3 session for %s", c.Location())
	}
	return &S3Fetcher{client: s3.New(sess), config: *c}, nil
}

type S3Fetcher struct {
	client s3iface.S3API
	config S3Config
}

var _ Fetcher = (*S3Fetcher)(nil)

func (f *S3Fetcher) Fetch(ctx context.Context, index uint32) (*SignedCheckpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	key := objectKey(f.config.Folder, index)
	out, err := f.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get s3://%s/%s", f.config.Bucket, key)
	}
	defer out.Body.Close()

	bz, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read s3://%s/%s", f.config.Bucket, key)
	}
	return Decode(bz)
}

func (f *S3Fetcher) AnnouncementLocation() string {
	return f.config.Location()
}
