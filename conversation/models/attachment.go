package models

import (
	"strings"
	"time"
)

// Attachment is a file either staged locally for sending or embedded in a received message
type Attachment struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Mimetype string    `json:"mimetype"`
	Size     int64     `json:"size"`
	ExpiryAt time.Time `json:"expiryAt"`
	Key      string    `json:"key,omitempty"`
}

// MediaFamily groups mimetypes the way the UI and the cache treat them
type MediaFamily string

const (
	FamilyAudio    MediaFamily = "audio"
	FamilyVideo    MediaFamily = "video"
	FamilyImage    MediaFamily = "image"
	FamilyDocument MediaFamily = "doc"
)

// Family returns the media family of the attachment's mimetype
func (a Attachment) Family() MediaFamily {
	mt := strings.ToLower(strings.TrimSpace(a.Mimetype))
	switch {
	case strings.HasPrefix(mt, "audio/"):
		return FamilyAudio
	case strings.HasPrefix(mt, "video/"):
		return FamilyVideo
	case strings.HasPrefix(mt, "image/"):
		return FamilyImage
	default:
		return FamilyDocument
	}
}

// UploadedReference is the durable remote pointer returned for an uploaded attachment
type UploadedReference struct {
	OriginalFilename string `json:"originalFilename"`
	Mimetype         string `json:"mimetype"`
	ObjectPath       string `json:"objectPath"`
	Size             int64  `json:"size"`
}

// CacheEntry records an attachment downloaded into the local cache
type CacheEntry struct {
	AttachmentID string    `json:"attachmentId"`
	LocalPath    string    `json:"localPath"`
	CachedAt     time.Time `json:"cachedAt"`
}
