package fetch

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/markbunyevacz/lambda-extractor/internal/common"
)

// Source lists and fetches datasheet objects. The upstream crawler drops
// PDFs into a bucket; the batch CLI pulls them from here.
type Source interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type s3Source struct {
	client *minio.Client
	bucket string
}

func NewS3Source(cfg common.FetchConfig) (Source, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &s3Source{client: client, bucket: cfg.Bucket}, nil
}

func (s *s3Source) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		if strings.HasSuffix(strings.ToLower(obj.Key), ".pdf") {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

func (s *s3Source) Fetch(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}
	return buf.Bytes(), nil
}
