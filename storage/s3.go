package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	log "github.com/CefBoud/monkafs/logging"
	"github.com/CefBoud/monkafs/types"
)

// S3 stores every key as an object in one bucket of an S3-compatible service.
type S3 struct {
	client *minio.Client
	bucket string
}

// NewS3 connects to the endpoint and creates the bucket if it is missing
func NewS3(ctx context.Context, cfg types.S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating s3 client for %v: %w", cfg.Endpoint, err)
	}
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket %v: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("error creating bucket %v: %w", cfg.BucketName, err)
		}
		log.Info("created bucket %v", cfg.BucketName)
	}
	return &S3{client: client, bucket: cfg.BucketName}, nil
}

func isS3NotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// List implements Backend
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirs implements Backend. A non-recursive listing returns the common prefixes
// as keys ending in "/".
func (s *S3) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	var dirs []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, "/") {
			dirs = append(dirs, obj.Key)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Read implements Backend
func (s *S3) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

// Write implements Backend
func (s *S3) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

// Exists implements Backend
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, err
}

// Delete implements Backend
func (s *S3) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// DeletePrefix implements Backend
func (s *S3) DeletePrefix(ctx context.Context, prefix string) error {
	objects := make(chan minio.ObjectInfo)
	listed := make(chan error, 1)
	go func() {
		listed <- forwardObjects(ctx, s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}), objects)
	}()
	var result *multierror.Error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objects, minio.RemoveObjectsOptions{}) {
		result = multierror.Append(result, fmt.Errorf("error removing %v: %w", rErr.ObjectName, rErr.Err))
	}
	if listErr := <-listed; listErr != nil {
		result = multierror.Append(result, listErr)
	}
	return result.ErrorOrNil()
}

// forwardObjects copies a listing into the removal queue and closes it. It gives up when
// ctx is done, since the consumer may have stopped reading.
func forwardObjects(ctx context.Context, listing <-chan minio.ObjectInfo, objects chan<- minio.ObjectInfo) error {
	defer close(objects)
	for obj := range listing {
		if obj.Err != nil {
			return obj.Err
		}
		select {
		case objects <- obj:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close implements Backend
func (s *S3) Close() error {
	return nil
}
