// Package cache keeps downloaded attachments on local disk under deterministic paths.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ai-productivity-app/assistant/conversation/models"
	pkgcache "ai-productivity-app/assistant/pkg/cache"
	apperrors "ai-productivity-app/assistant/pkg/errors"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/metrics"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"
)

const (
	tempPattern            = ".download-*"
	staleTempAge           = time.Hour
	defaultDownloadTimeout = 10 * time.Minute
)

// Downloader streams the content at url into w
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) error
}

// Options configures a Cache
type Options struct {
	// IndexTTL bounds how long a CacheEntry is remembered in memory
	IndexTTL time.Duration
	// IndexSize caps the number of remembered entries
	IndexSize int
	// PurgeWindow runs the index janitor when positive
	PurgeWindow time.Duration
	// DownloadTimeout bounds a shared download, which outlives any single caller
	DownloadTimeout time.Duration
	Log             *logger.Logger
	Metrics         *metrics.Metrics
}

// Cache maps remote attachments to files in one directory
type Cache struct {
	dir             string
	downloader      Downloader
	downloadTimeout time.Duration
	index           *pkgcache.Cache[models.CacheEntry]
	group           singleflight.Group
	log             *logger.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

// New creates the cache directory if needed and returns a Cache rooted there
func New(dir string, downloader Downloader, opts Options) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = defaultDownloadTimeout
	}
	return &Cache{
		dir:             dir,
		downloader:      downloader,
		downloadTimeout: opts.DownloadTimeout,
		index: pkgcache.New[models.CacheEntry](pkgcache.Options{
			DefaultExpiration: opts.IndexTTL,
			CleanupInterval:   opts.PurgeWindow,
			MaxItems:          opts.IndexSize,
		}),
		log:     opts.Log.WithComponent("attachment-cache"),
		metrics: opts.Metrics,
		now:     time.Now,
	}, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// Resolve returns the local path for att inside this cache
func (c *Cache) Resolve(att models.Attachment) string {
	return Resolve(c.dir, att)
}

// Resolve returns <dir>/<family>_<expiryUnix>_<id><ext>. It depends only on its inputs.
// A zero expiry is written as 0 and never pruned.
func Resolve(dir string, att models.Attachment) string {
	var expiry int64
	if !att.ExpiryAt.IsZero() {
		expiry = att.ExpiryAt.Unix()
	}
	name := fmt.Sprintf("%s_%d_%s%s", att.Family(), expiry, sanitize(att.ID), extension(att))
	return filepath.Join(dir, name)
}

func sanitize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}

func extension(att models.Attachment) string {
	if ext := strings.ToLower(filepath.Ext(att.Name)); ext != "" && len(ext) <= 10 && !strings.ContainsAny(ext, `/\ `) {
		return ext
	}
	if mt := mimetype.Lookup(strings.TrimSpace(att.Mimetype)); mt != nil {
		return mt.Extension()
	}
	return ""
}

// EnsureLocal returns the local path of att, downloading it on a miss. Concurrent calls for
// the same path share one download, which keeps running when the caller that started it
// gives up. The file appears under its final name only once fully written.
func (c *Cache) EnsureLocal(ctx context.Context, att models.Attachment) (string, error) {
	path := c.Resolve(att)
	if exists(path) {
		c.metrics.CacheLookups.WithLabelValues(metrics.ResultHit).Inc()
		c.remember(att.ID, path)
		return path, nil
	}

	result := c.group.DoChan(path, func() (any, error) {
		if exists(path) {
			return nil, nil
		}
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.downloadTimeout)
		defer cancel()
		return nil, c.download(dctx, att, path)
	})

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case res := <-result:
		err = res.Err
	}
	if err != nil {
		c.metrics.CacheLookups.WithLabelValues(metrics.ResultError).Inc()
		return "", apperrors.NewDownloadFailure(att.ID, err)
	}

	c.metrics.CacheLookups.WithLabelValues(metrics.ResultMiss).Inc()
	c.remember(att.ID, path)
	return path, nil
}

func (c *Cache) download(ctx context.Context, att models.Attachment, path string) error {
	if att.URL == "" {
		return fmt.Errorf("attachment %s has no url", att.ID)
	}

	tmp, err := os.CreateTemp(c.dir, tempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	err = c.downloader.Download(ctx, att.URL, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpPath, path)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		c.log.Warn("attachment download failed", "attachment_id", att.ID, "error", err.Error())
		return err
	}

	c.log.Debug("attachment cached", "attachment_id", att.ID, "path", path)
	return nil
}

func (c *Cache) remember(id, path string) {
	c.index.Set(id, models.CacheEntry{AttachmentID: id, LocalPath: path, CachedAt: c.now()})
}

// Entry returns the index record for an attachment cached by this process. Records whose
// file has since disappeared are dropped.
func (c *Cache) Entry(id string) (models.CacheEntry, bool) {
	entry, ok := c.index.Get(id)
	if !ok {
		return models.CacheEntry{}, false
	}
	if !exists(entry.LocalPath) {
		c.index.Delete(id)
		return models.CacheEntry{}, false
	}
	return entry, true
}

// PruneExpired deletes cached files whose expiry is before now, plus temp files abandoned
// for over an hour, and returns how many files were removed.
func (c *Cache) PruneExpired(now time.Time) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".download-") {
			info, err := e.Info()
			if err != nil || now.Sub(info.ModTime()) < staleTempAge {
				continue
			}
		} else if !expired(name, now) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !os.IsNotExist(err) {
			c.log.Warn("failed to prune cached attachment", "file", name, "error", err.Error())
			continue
		}
		removed++
	}

	if removed > 0 {
		c.log.Info("pruned cached attachments", "count", removed)
	}
	return removed, nil
}

// Close stops the index janitor
func (c *Cache) Close() {
	c.index.Stop()
}

func expired(name string, now time.Time) bool {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) != 3 {
		return false
	}
	switch models.MediaFamily(parts[0]) {
	case models.FamilyAudio, models.FamilyVideo, models.FamilyImage, models.FamilyDocument:
	default:
		return false
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || expiry == 0 {
		return false
	}
	return now.Unix() > expiry
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
