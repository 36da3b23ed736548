// Package upload copies finished session directories to S3-compatible storage.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lamim/medibill/internal/config"
)

// Uploader puts session files under <prefix>/<session>/<file>
type Uploader struct {
	client *minio.Client
	bucket string
	region string
	prefix string
	logger *slog.Logger

	// bucketReady is set once the bucket is known to exist; failures are retried
	mu          sync.Mutex
	bucketReady bool
}

// New creates an Uploader from storage settings and S3 credentials
func New(cfg config.StorageConfig, secrets *config.Secrets, logger *slog.Logger) (*Uploader, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if secrets == nil || secrets.S3AccessKey == "" || secrets.S3SecretKey == "" {
		return nil, fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required for uploads")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(secrets.S3AccessKey, secrets.S3SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &Uploader{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger.With("component", "upload"),
	}, nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.bucketReady {
		return nil
	}

	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return err
	}
	if !exists {
		u.logger.Info("Creating bucket", "bucket", u.bucket, "region", u.region)
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
			return err
		}
	}
	u.bucketReady = true
	return nil
}

// UploadSession uploads every regular file in sessionDir (not recursing into
// subdirectories) and returns the object keys written, sorted.
func (u *Uploader) UploadSession(ctx context.Context, sessionDir string) ([]string, error) {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return nil, fmt.Errorf("read session directory: %w", err)
	}
	if err := u.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	session := filepath.Base(filepath.Clean(sessionDir))
	var keys []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}

		key := objectKey(u.prefix, session, entry.Name())
		info, err := u.client.FPutObject(ctx, u.bucket, key, filepath.Join(sessionDir, entry.Name()), minio.PutObjectOptions{
			ContentType: contentType(entry.Name()),
		})
		if err != nil {
			return keys, fmt.Errorf("upload %s: %w", entry.Name(), err)
		}
		u.logger.Debug("Uploaded file", "key", key, "size", info.Size)
		keys = append(keys, key)
	}

	sort.Strings(keys)
	u.logger.Info("Session uploaded", "session", session, "bucket", u.bucket, "files", len(keys))
	return keys, nil
}

func objectKey(prefix, session, name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if prefix == "" {
		return path.Join(session, name)
	}
	return path.Join(prefix, session, name)
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".jsonl"):
		return "application/x-ndjson"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".log"), strings.HasSuffix(name, ".bak"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
