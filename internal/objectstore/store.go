// Package objectstore mirrors raw meter logs from S3 and uploads run artifacts.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"

	"github.com/kanna-karuppasamy/smart-grid-metering-parser/internal/config"
)

const defaultMaxRetries = 3

// S3API is the subset of the S3 client used by the store
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from configuration. Static credentials are
// used when set, otherwise the default AWS credential chain. A custom endpoint
// switches to path-style addressing for MinIO and similar stores.
func NewS3Client(ctx context.Context, cfg config.ObjectStoreConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Config holds object store configuration
type Config struct {
	Logger *slog.Logger
	Client S3API
	Bucket string

	// Optional configuration.
	MaxRetries      uint
	InitialInterval time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Client == nil {
		return errors.New("s3 client is required")
	}
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// Store moves files between the local disk and one bucket
type Store struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Store{log: cfg.Logger.With("bucket", cfg.Bucket), cfg: cfg}, nil
}

// Mirror downloads every object under prefix into dir, keeping the key
// layout below the prefix. It returns the number of files written.
func (s *Store) Mirror(ctx context.Context, prefix, dir string) (int, error) {
	prefix = dirPrefix(prefix)
	paginator := s3.NewListObjectsV2Paginator(s.cfg.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return count, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			target, err := LocalPath(dir, prefix, key)
			if err != nil {
				s.log.Warn("Skipping object", "key", key, "error", err)
				continue
			}
			if err := s.download(ctx, key, target); err != nil {
				return count, err
			}
			count++
		}
	}

	s.log.Info("Mirrored raw logs", "prefix", prefix, "dir", dir, "files", count)
	return count, nil
}

// LocalPath maps an object key below prefix to a path below dir. The
// prefix is a folder: "raw" matches "raw/x" but not "raw2/x".
func LocalPath(dir, prefix, key string) (string, error) {
	prefix = dirPrefix(prefix)
	rel, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", fmt.Errorf("key %q is not below %q", key, prefix)
	}
	rel = filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("key %q does not map below %q", key, prefix)
	}
	return filepath.Join(dir, rel), nil
}

// dirPrefix returns prefix ending in exactly one "/", or "" for the bucket root.
func dirPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (s *Store) download(ctx context.Context, key, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}

	_, err := retry(ctx, s, "download", key, func() (struct{}, error) {
		out, err := s.cfg.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return struct{}{}, err
		}
		defer out.Body.Close()

		f, err := os.Create(target)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if _, err := io.Copy(f, out.Body); err != nil {
			f.Close()
			return struct{}{}, err
		}
		return struct{}{}, f.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return nil
}

// UploadFiles puts each file under keyPrefix using its base name and
// returns the uploaded keys.
func (s *Store) UploadFiles(ctx context.Context, keyPrefix string, paths []string) ([]string, error) {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		key := path.Join(keyPrefix, filepath.Base(p))
		_, err := retry(ctx, s, "upload", key, func() (*s3.PutObjectOutput, error) {
			f, err := os.Open(p)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			defer f.Close()

			input := &s3.PutObjectInput{
				Bucket: aws.String(s.cfg.Bucket),
				Key:    aws.String(key),
				Body:   f,
			}
			if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
				input.ContentType = aws.String(ct)
			}
			return s.cfg.Client.PutObject(ctx, input)
		})
		if err != nil {
			return keys, fmt.Errorf("failed to upload %s: %w", p, err)
		}
		keys = append(keys, key)
	}

	s.log.Info("Uploaded artifacts", "prefix", keyPrefix, "files", len(keys))
	return keys, nil
}

func retry[T any](ctx context.Context, s *Store, op, key string, fn func() (T, error)) (T, error) {
	attempt := 0
	b := backoff.NewExponentialBackOff()
	if s.cfg.InitialInterval > 0 {
		b.InitialInterval = s.cfg.InitialInterval
	}
	return backoff.Retry(ctx, func() (T, error) {
		if attempt > 0 {
			s.log.Warn("Object store request failed, retrying", "op", op, "key", key, "attempt", attempt)
		}
		attempt++
		return fn()
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.cfg.MaxRetries))
}
