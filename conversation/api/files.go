package api

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/errors"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/middleware"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UploadField is the multipart field carrying the files
const UploadField = "files"

// FileHandler stores uploaded attachments on local disk, one directory per user
type FileHandler struct {
	root    string
	maxSize int64
	log     *logger.Logger
}

// NewFileHandler serves files under root. maxSize bounds each file; zero means 50 MiB.
func NewFileHandler(root string, maxSize int64, log *logger.Logger) (*FileHandler, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if maxSize <= 0 {
		maxSize = 50 << 20
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FileHandler{root: root, maxSize: maxSize, log: log}, nil
}

// Writable checks that the storage root accepts new files
func (h *FileHandler) Writable() error {
	f, err := os.CreateTemp(h.root, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Upload handles POST /files/upload
func (h *FileHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.Error(errors.NewBadRequestError("INVALID_UPLOAD", "multipart form expected"))
		return
	}
	files := form.File[UploadField]
	if len(files) == 0 {
		c.Error(errors.NewBadRequestError("INVALID_UPLOAD", "no files in field "+UploadField))
		return
	}

	userID := middleware.UserID(c)
	dir := filepath.Join(h.root, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.Error(err)
		return
	}

	refs := make([]models.UploadedReference, 0, len(files))
	written := make([]string, 0, len(files))
	fail := func(err error) {
		for _, p := range written {
			os.Remove(p)
		}
		c.Error(err)
	}

	for _, fh := range files {
		if fh.Size > h.maxSize {
			fail(errors.NewBadRequestError("FILE_TOO_LARGE", fmt.Sprintf("%s exceeds %d bytes", fh.Filename, h.maxSize)))
			return
		}

		name := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
		dst := filepath.Join(dir, name)
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			fail(fmt.Errorf("save %s: %w", fh.Filename, err))
			return
		}
		written = append(written, dst)

		mt := fh.Header.Get("Content-Type")
		if mt == "" || mt == "application/octet-stream" {
			if detected, err := mimetype.DetectFile(dst); err == nil {
				mt = detected.String()
			}
		}

		refs = append(refs, models.UploadedReference{
			OriginalFilename: filepath.Base(fh.Filename),
			Mimetype:         mt,
			ObjectPath:       path.Join(userID, name),
			Size:             fh.Size,
		})
	}

	h.log.Info("files uploaded", "user_id", userID, "count", len(refs))
	c.JSON(http.StatusOK, gin.H{"success": true, "data": refs})
}

// Serve handles GET /files/*path. Users can only read their own objects.
func (h *FileHandler) Serve(c *gin.Context) {
	rel := strings.TrimPrefix(path.Clean("/"+c.Param("path")), "/")
	owner, _, found := strings.Cut(rel, "/")
	if !found || owner != middleware.UserID(c) {
		c.Error(errors.NewNotFoundError("FILE_NOT_FOUND", "File not found"))
		return
	}

	full := filepath.Join(h.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		c.Error(errors.NewNotFoundError("FILE_NOT_FOUND", "File not found"))
		return
	}
	c.File(full)
}
