// Package s3fs implements connection.Connection over an S3 bucket. Names are
// object keys.
package s3fs

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"tableread/internal/connection"
	"tableread/internal/errs"
)

// Config holds the client settings. Empty credentials mean the default AWS
// credential chain (environment, shared config, instance role).
type Config struct {
	Region            string `json:"region" mapstructure:"region"`
	Endpoint          string `json:"endpoint" mapstructure:"endpoint"`
	UsePathStyle      bool   `json:"use_path_style" mapstructure:"use_path_style"`
	CredentialsKey    string `json:"credentials_key" mapstructure:"credentials_key"`
	CredentialsSecret string `json:"credentials_secret" mapstructure:"credentials_secret"`
	CredentialsToken  string `json:"credentials_token" mapstructure:"credentials_token"`
}

// API is the subset of *s3.Client used here.
type API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// FS is a connection to one bucket.
type FS struct {
	api    API
	bucket string
	closed atomic.Bool
}

// NewClient builds an S3 client from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.CredentialsKey != "" && cfg.CredentialsSecret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.CredentialsKey, cfg.CredentialsSecret, cfg.CredentialsToken),
		))
	}

	sess, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Configurationf("s3fs: load aws config: %v", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(sess, s3opts...), nil
}

// Dial builds a client and binds it to bucket. No request is made; a missing
// bucket surfaces on the first Stat or Open.
func Dial(ctx context.Context, cfg Config, bucket string) (*FS, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errs.Configurationf("s3fs: bucket must not be empty")
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, bucket), nil
}

// New binds api to bucket.
func New(api API, bucket string) *FS {
	return &FS{api: api, bucket: bucket}
}

func (f *FS) Scheme() string { return "s3" }

// Bucket returns the bucket the connection is bound to.
func (f *FS) Bucket() string { return f.bucket }

func (f *FS) Stat(ctx context.Context, name string) (connection.FileInfo, error) {
	if err := f.check(ctx); err != nil {
		return connection.FileInfo{}, err
	}
	key := objectKey(name)
	out, err := f.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return connection.FileInfo{}, f.mapErr(ctx, err, name)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return connection.FileInfo{
		Name:    path.Base(key),
		Size:    size,
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

func (f *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := f.check(ctx); err != nil {
		return nil, err
	}
	out, err := f.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(objectKey(name)),
	})
	if err != nil {
		return nil, f.mapErr(ctx, err, name)
	}
	return out.Body, nil
}

// Close marks the connection closed. The SDK client holds no resources that
// need releasing.
func (f *FS) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *FS) check(ctx context.Context) error {
	if err := errs.CheckContext(ctx); err != nil {
		return err
	}
	if f.closed.Load() {
		return errs.UseAfterClosef("s3fs: connection closed")
	}
	return nil
}

func (f *FS) mapErr(ctx context.Context, err error, name string) error {
	if ctx.Err() != nil {
		return errs.Cancelled(ctx.Err())
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return connection.NotExist("s3", f.bucket+"/"+objectKey(name))
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return errs.Resolution(err, "s3fs: bucket %q", f.bucket)
	}
	return errs.Resolution(err, "s3fs: %s/%s", f.bucket, objectKey(name))
}

func objectKey(name string) string {
	return strings.TrimPrefix(name, "/")
}

// ParseURL splits an s3://bucket/key URL.
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errs.Configurationf("s3fs: invalid url %q: %v", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", errs.Configurationf("s3fs: unsupported scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return "", "", errs.Configurationf("s3fs: missing bucket in %q", raw)
	}
	key = objectKey(u.Path)
	if key == "" {
		return "", "", errs.Configurationf("s3fs: missing key in %q", raw)
	}
	return u.Host, key, nil
}

var _ connection.Connection = (*FS)(nil)
