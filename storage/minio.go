package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sync"
	"time"

	"vizdirector/config"
	"vizdirector/logger"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// exportsPrefix is the bucket directory holding exports.
const exportsPrefix = "exports/"

// MinioStore keeps exports in MinIO and hands out presigned download URLs.
type MinioStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration

	mu      sync.Mutex
	handles map[string]minioExport
}

type minioExport struct {
	handle Handle
	key    string
}

// NewMinioClient creates a MinIO client from cfg.
func NewMinioClient(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// NewMinioStore connects to MinIO and makes sure the export bucket exists.
func NewMinioStore(ctx context.Context, cfg *config.Config) (*MinioStore, error) {
	logger.Info("connecting to minio",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket),
		logger.Bool("ssl", cfg.MinioUseSSL))

	client, err := NewMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// make sure the bucket exists
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created minio bucket", logger.String("bucket", cfg.MinioBucket))
	}

	expiry := cfg.MinioURLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &MinioStore{
		client:  client,
		bucket:  cfg.MinioBucket,
		expiry:  expiry,
		handles: make(map[string]minioExport),
	}, nil
}

// Put uploads data and presigns a download URL that carries the filename.
func (s *MinioStore) Put(ctx context.Context, filename, contentType string, data []byte) (Handle, error) {
	id := uuid.NewString()
	key := path.Join(exportsPrefix, id, filename)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("upload export %s: %w", key, err)
	}

	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, params)
	if err != nil {
		// the object is already uploaded; remove it when presigning fails
		if rmErr := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); rmErr != nil {
			logger.Warn("remove unsigned export", logger.String("key", key), logger.ErrorField(rmErr))
		}
		return Handle{}, fmt.Errorf("presign export %s: %w", key, err)
	}

	h := Handle{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		URL:         u.String(),
		CreatedAt:   time.Now(),
	}
	s.mu.Lock()
	s.handles[id] = minioExport{handle: h, key: key}
	s.mu.Unlock()

	logger.Info("export uploaded", logger.String("key", key), logger.Int64("size", h.Size))
	return h, nil
}

// Revoke deletes the object behind the handle.
func (s *MinioStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := s.client.RemoveObject(ctx, s.bucket, e.key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove export %s: %w", e.key, err)
	}
	return nil
}

// Open streams the object for the /exports download route.
func (s *MinioStore) Open(ctx context.Context, id string) (Handle, io.ReadCloser, error) {
	s.mu.Lock()
	e, ok := s.handles[id]
	s.mu.Unlock()
	if !ok {
		return Handle{}, nil, ErrNotFound
	}
	obj, err := s.client.GetObject(ctx, s.bucket, e.key, minio.GetObjectOptions{})
	if err != nil {
		return Handle{}, nil, fmt.Errorf("get export %s: %w", e.key, err)
	}
	return e.handle, obj, nil
}

// Client exposes the underlying client for bucket maintenance commands.
func (s *MinioStore) Client() *minio.Client {
	return s.client
}
