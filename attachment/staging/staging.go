// Package staging holds the attachments a user has picked for the next message.
package staging

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"ai-productivity-app/assistant/conversation/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by Add after the owning flow has torn the area down
	ErrClosed = errors.New("staging area closed")
	// ErrDuplicate is returned when an attachment with the same id is already staged
	ErrDuplicate = errors.New("attachment already staged")
)

// Area is an ordered set of staged attachments owned by one compose flow
type Area struct {
	mu     sync.RWMutex
	items  []models.Attachment
	closed bool
}

// New creates an empty staging area
func New() *Area {
	return &Area{}
}

// Add appends att. Attachments are kept by value and never mutated in place.
func (a *Area) Add(att models.Attachment) error {
	if att.ID == "" {
		return errors.New("attachment id is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	for _, existing := range a.items {
		if existing.ID == att.ID {
			return fmt.Errorf("%w: %s", ErrDuplicate, att.ID)
		}
	}
	a.items = append(a.items, att)
	return nil
}

// Remove drops the attachment with id and reports whether it was staged
func (a *Area) Remove(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, att := range a.items {
		if att.ID == id {
			a.items = append(a.items[:i:i], a.items[i+1:]...)
			return true
		}
	}
	return false
}

// Restore puts attachments back ahead of anything staged since, keeping their order.
// Ids already staged are skipped.
func (a *Area) Restore(atts []models.Attachment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || len(atts) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(a.items))
	for _, att := range a.items {
		seen[att.ID] = struct{}{}
	}
	restored := make([]models.Attachment, 0, len(atts)+len(a.items))
	for _, att := range atts {
		if _, ok := seen[att.ID]; ok {
			continue
		}
		seen[att.ID] = struct{}{}
		restored = append(restored, att)
	}
	a.items = append(restored, a.items...)
}

// Clear empties the area
func (a *Area) Clear() {
	a.mu.Lock()
	a.items = nil
	a.mu.Unlock()
}

// Take returns the staged attachments and empties the area in one step
func (a *Area) Take() []models.Attachment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.items
	a.items = nil
	return out
}

// List returns a copy of the staged attachments in insertion order
func (a *Area) List() []models.Attachment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.Attachment(nil), a.items...)
}

// Len returns the number of staged attachments
func (a *Area) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.items)
}

// Close empties the area and rejects further additions
func (a *Area) Close() {
	a.mu.Lock()
	a.items = nil
	a.closed = true
	a.mu.Unlock()
}

// FromFile builds an attachment for a local file chosen by a picker
func FromFile(path string) (models.Attachment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.Attachment{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.Attachment{}, err
	}
	if info.IsDir() {
		return models.Attachment{}, fmt.Errorf("%s is a directory", path)
	}

	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("detect mimetype of %s: %w", path, err)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return models.Attachment{
		ID:       uuid.NewString(),
		URL:      u.String(),
		Name:     filepath.Base(abs),
		Mimetype: mt.String(),
		Size:     info.Size(),
	}, nil
}

// LocalPath returns the filesystem path of a file:// or bare-path attachment URL
func LocalPath(att models.Attachment) (string, error) {
	u, err := url.Parse(att.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "file":
		return filepath.FromSlash(u.Path), nil
	case "":
		return att.URL, nil
	default:
		return "", fmt.Errorf("attachment %s is not local: %s", att.ID, att.URL)
	}
}
