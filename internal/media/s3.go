package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"cultivate/internal/config"
	"cultivate/internal/forum"
)

// s3API is the subset of the S3 client the adapter calls directly.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// uploader streams a body of unknown length, switching to multipart as needed.
type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Adapter stores uploads in an S3 bucket (or an S3-compatible endpoint)
// under an optional key prefix.
type S3Adapter struct {
	bucket   string
	prefix   string
	baseURL  string
	client   s3API
	uploader uploader
	ids      forum.IDGenerator
}

// NewS3Adapter builds a client from cfg. Static keys are used when set,
// otherwise the default AWS credential chain applies.
func NewS3Adapter(ctx context.Context, cfg config.MediaConfig, ids forum.IDGenerator) (*S3Adapter, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 media requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Adapter(cfg.S3Bucket, cfg.S3Prefix, objectBaseURL(cfg, awsCfg.Region), client, manager.NewUploader(client), ids), nil
}

func newS3Adapter(bucket, prefix, baseURL string, client s3API, up uploader, ids forum.IDGenerator) *S3Adapter {
	if ids == nil {
		ids = forum.UUIDGenerator{}
	}
	return &S3Adapter{
		bucket:   bucket,
		prefix:   prefix,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   client,
		uploader: up,
		ids:      ids,
	}
}

// objectBaseURL is the public URL objects are addressed under.
func objectBaseURL(cfg config.MediaConfig, region string) string {
	if cfg.S3Endpoint != "" {
		return strings.TrimSuffix(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
	}
	if region == "" {
		return "https://" + cfg.S3Bucket + ".s3.amazonaws.com"
	}
	return "https://" + cfg.S3Bucket + ".s3." + region + ".amazonaws.com"
}

func (a *S3Adapter) objectKey(key string) string {
	return a.prefix + key
}

func (a *S3Adapter) Put(ctx context.Context, name string, r io.Reader, size int64) (*forum.MediaObject, error) {
	obj, body, err := prepare(a.ids, name, r)
	if err != nil {
		return nil, err
	}

	counter := &countingReader{r: body}
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.objectKey(obj.Key)),
		Body:        counter,
		ContentType: aws.String(obj.MimeType),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", obj.Key, err)
	}
	if err := checkSize(size, counter.n); err != nil {
		// The object is already stored; remove it so the mismatch leaves nothing.
		a.Delete(ctx, obj.Key)
		return nil, err
	}

	obj.Size = counter.n
	obj.URL = a.baseURL + "/" + a.objectKey(obj.Key)
	return obj, nil
}

func (a *S3Adapter) Get(ctx context.Context, key string, w io.Writer) error {
	if err := validKey(key); err != nil {
		return err
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("fetching %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

// Delete removes the object. S3 deletes are idempotent, so a HEAD first
// reports missing keys the way the other adapters do.
func (a *S3Adapter) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(key)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("checking %s: %w", key, err)
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and the credentials reach it.
func (a *S3Adapter) ValidateSetup(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", a.bucket, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ forum.MediaAdapter = (*S3Adapter)(nil)
