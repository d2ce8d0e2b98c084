package ingest

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by ObjectStore.
type S3API interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ObjectStore reads gzipped measurement archives from an S3 bucket.
type ObjectStore struct {
	client S3API
	bucket string
}

// ObjectStoreOption configures an ObjectStore.
type ObjectStoreOption func(*ObjectStore)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) ObjectStoreOption {
	return func(o *ObjectStore) { o.client = c }
}

// NewObjectStore creates an ObjectStore for the given bucket. Region may
// be empty, in which case the default credential chain decides.
func NewObjectStore(bucket, region string, opts ...ObjectStoreOption) (*ObjectStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name required")
	}
	o := &ObjectStore{bucket: bucket}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		o.client = s3.NewFromConfig(cfg)
	}
	return o, nil
}

// ObjectInfo describes one listed archive.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// List returns every object under the prefix, following continuation
// tokens until the listing is exhausted.
func (o *ObjectStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	prefix = strings.TrimLeft(prefix, "/")

	var out []ObjectInfo
	var token *string
	for {
		page, err := o.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(o.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", o.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(obj.Key)}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			out = append(out, info)
		}
		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

// gzipReadCloser closes both the decompressor and the underlying body
type gzipReadCloser struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipReadCloser) Close() error {
	gzErr := g.Reader.Close()
	if err := g.body.Close(); err != nil {
		return err
	}
	return gzErr
}

// Open streams the object's decompressed content.
func (o *ObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", o.bucket, key, err)
	}
	gz, err := gzip.NewReader(obj.Body)
	if err != nil {
		obj.Body.Close()
		return nil, fmt.Errorf("decompressing s3://%s/%s: %w", o.bucket, key, err)
	}
	return &gzipReadCloser{Reader: gz, body: obj.Body}, nil
}
