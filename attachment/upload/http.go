package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"

	"ai-productivity-app/assistant/attachment/staging"
	"ai-productivity-app/assistant/conversation/models"
)

// FormField is the multipart field each file is sent under
const FormField = "files"

// Poster sends a prepared request body and decodes the JSON reply into out
type Poster interface {
	Upload(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error
}

// Response is the JSON body returned by the upload endpoint
type Response struct {
	Success bool                       `json:"success"`
	Data    []models.UploadedReference `json:"data"`
	Message string                     `json:"message,omitempty"`
}

// HTTPUploader posts the whole batch as one multipart request
type HTTPUploader struct {
	poster   Poster
	endpoint string
}

// NewHTTPUploader creates an uploader that posts to endpoint through poster
func NewHTTPUploader(poster Poster, endpoint string) *HTTPUploader {
	return &HTTPUploader{poster: poster, endpoint: endpoint}
}

// Upload implements Uploader
func (u *HTTPUploader) Upload(ctx context.Context, atts []models.Attachment) ([]models.UploadedReference, error) {
	// open every file first so a missing one fails before any bytes are sent
	files := make([]*os.File, 0, len(atts))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, att := range atts {
		path, err := staging.LocalPath(att)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", att.Name, err)
		}
		files = append(files, f)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, atts, files))
	}()

	var resp Response
	err := u.poster.Upload(ctx, u.endpoint, mw.FormDataContentType(), pr, &resp)
	_ = pr.Close()
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "upload rejected"
		}
		return nil, errors.New(msg)
	}
	return resp.Data, nil
}

func writeParts(mw *multipart.Writer, atts []models.Attachment, files []*os.File) error {
	for i, att := range atts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, att.Name))
		if att.Mimetype != "" {
			h.Set("Content-Type", att.Mimetype)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, files[i]); err != nil {
			return fmt.Errorf("write %s: %w", att.Name, err)
		}
	}
	return mw.Close()
}
