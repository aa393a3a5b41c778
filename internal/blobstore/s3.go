// Package blobstore: S3-compatible backend. Works against AWS S3 and
// path-style-compatible services such as MinIO.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// s3Backend wraps an AWS S3 client plus a scratch directory used to stage
// objects for tools (ffprobe/ffmpeg) that only operate on local files.
type s3Backend struct {
	client     *s3.Client
	bucket     string
	scratchDir string
}

// NewS3 creates an S3-compatible backend. scratchDir is used by Resolve to
// stage downloaded objects; it is created if missing.
func NewS3(endpoint, region, bucket, accessKey, secretKey, scratchDir string) (Storage, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     accessKey,
					SecretAccessKey: secretKey,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	return withMetrics(&s3Backend{client: client, bucket: bucket, scratchDir: scratchDir}), nil
}

func (s *s3Backend) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (s *s3Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return out.Body, nil
}

// Exists performs a real HeadObject round-trip: a prior revision of this
// backend treated an empty local checksum as always matching, which made
// Exists report true for objects it never actually verified. That logic is
// gone — existence is whatever S3 itself confirms.
func (s *s3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head %s: %w", key, err)
	}
	return true, nil
}

func (s *s3Backend) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *s3Backend) DeleteDirectory(ctx context.Context, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			return fmt.Errorf("failed to batch-delete under %s: %w", prefix, err)
		}
	}
	return nil
}

// Resolve downloads key to a file under the scratch directory so
// ffprobe/ffmpeg can operate on it as a local path. The returned cleanup
// removes the staged copy.
func (s *s3Backend) Resolve(ctx context.Context, key string) (string, func(), error) {
	body, err := s.Download(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer body.Close()

	staged, err := os.CreateTemp(s.scratchDir, "resolve-*-"+filepath.Base(key))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch file: %w", err)
	}

	if _, err := io.Copy(staged, body); err != nil {
		staged.Close()
		os.Remove(staged.Name())
		return "", nil, fmt.Errorf("failed to stage %s: %w", key, err)
	}
	staged.Close()

	path := staged.Name()
	cleanup := func() { os.Remove(path) }
	return path, cleanup, nil
}

func isNotFound(err error) bool {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
