package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"ai-productivity-app/assistant/attachment/staging"
	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/logger"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// ObjectStore writes and deletes objects by key
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Delete(ctx context.Context, key string) error
}

// GCSStore is an ObjectStore backed by one Cloud Storage bucket
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore opens a storage client for bucket. Credentials come from the environment
// unless opts override them.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Put implements ObjectStore
func (s *GCSStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// Delete implements ObjectStore
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

// Close releases the storage client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// GCSUploader writes each attachment as its own object with bounded concurrency
type GCSUploader struct {
	store       ObjectStore
	prefix      string
	concurrency int
	log         *logger.Logger
}

// NewGCSUploader creates an uploader that stores objects under prefix
func NewGCSUploader(store ObjectStore, prefix string, concurrency int, log *logger.Logger) *GCSUploader {
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GCSUploader{
		store:       store,
		prefix:      strings.Trim(prefix, "/"),
		concurrency: concurrency,
		log:         log.WithComponent("gcs-uploader"),
	}
}

// Upload implements Uploader. References are stored by index so the output order matches
// the input. When any write fails, objects already written are deleted best effort.
func (u *GCSUploader) Upload(ctx context.Context, atts []models.Attachment) ([]models.UploadedReference, error) {
	refs := make([]models.UploadedReference, len(atts))
	written := make([]bool, len(atts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, att := range atts {
		i, att := i, att
		g.Go(func() error {
			ref, err := u.put(gctx, att)
			if err != nil {
				return err
			}
			refs[i] = ref
			written[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		u.cleanup(refs, written)
		return nil, err
	}
	return refs, nil
}

func (u *GCSUploader) put(ctx context.Context, att models.Attachment) (models.UploadedReference, error) {
	local, err := staging.LocalPath(att)
	if err != nil {
		return models.UploadedReference{}, err
	}
	f, err := os.Open(local)
	if err != nil {
		return models.UploadedReference{}, fmt.Errorf("open %s: %w", att.Name, err)
	}
	defer f.Close()

	key := u.objectKey(att)
	if err := u.store.Put(ctx, key, att.Mimetype, f); err != nil {
		return models.UploadedReference{}, fmt.Errorf("upload %s: %w", att.Name, err)
	}

	size := att.Size
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return models.UploadedReference{
		OriginalFilename: att.Name,
		Mimetype:         att.Mimetype,
		ObjectPath:       key,
		Size:             size,
	}, nil
}

func (u *GCSUploader) objectKey(att models.Attachment) string {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(att.Name))
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

func (u *GCSUploader) cleanup(refs []models.UploadedReference, written []bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i, ok := range written {
		if !ok {
			continue
		}
		if err := u.store.Delete(ctx, refs[i].ObjectPath); err != nil {
			u.log.Warn("failed to remove partial upload", "key", refs[i].ObjectPath, "error", err.Error())
		}
	}
}
