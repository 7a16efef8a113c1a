// internal/archive/minio.go
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/signalnine/logsentry/internal/config"
)

// Archiver stores a copy of an uploaded CSV
type Archiver interface {
	Upload(ctx context.Context, analysisID, fileName string, data []byte) (string, error)
}

// Store archives uploads to an S3-compatible bucket
type Store struct {
	client     *minio.Client
	bucketName string
}

// New connects to the bucket, creating it if needed
func New(ctx context.Context, cfg config.ArchiveConfig) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: cli, bucketName: cfg.Bucket}, nil
}

// Upload puts the raw CSV under uploads/<analysis id>/<file name>
func (s *Store) Upload(ctx context.Context, analysisID, fileName string, data []byte) (string, error) {
	key := ObjectKey(analysisID, fileName)
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucketName, key), nil
}

// ObjectKey builds the bucket key for an upload. Directory parts of the
// client-supplied file name are discarded.
func ObjectKey(analysisID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload.csv"
	}
	return path.Join("uploads", analysisID, name)
}

// Nop discards uploads; used when no archive is configured
type Nop struct{}

func (Nop) Upload(ctx context.Context, analysisID, fileName string, data []byte) (string, error) {
	return "", nil
}

// Best uploads and logs failures instead of returning them.
// Archiving never blocks an analysis.
func Best(ctx context.Context, a Archiver, analysisID, fileName string, data []byte) {
	if a == nil {
		return
	}
	url, err := a.Upload(ctx, analysisID, fileName, data)
	if err != nil {
		log.Printf("Archive upload failed for %s (%s): %v", analysisID, fileName, err)
		return
	}
	if url != "" {
		log.Printf("Archived %s to %s", fileName, url)
	}
}
