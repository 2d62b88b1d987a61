// Package upload turns staged attachments into durable remote references before a message
// is sent.
package upload

import (
	"context"
	"fmt"
	"time"

	"ai-productivity-app/assistant/conversation/models"
	apperrors "ai-productivity-app/assistant/pkg/errors"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/metrics"
)

// Uploader stores a batch of attachments and returns one reference per input, in order
type Uploader interface {
	Upload(ctx context.Context, atts []models.Attachment) ([]models.UploadedReference, error)
}

// Pipeline runs an Uploader under its own timeout with all-or-nothing semantics
type Pipeline struct {
	uploader Uploader
	timeout  time.Duration
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewPipeline creates a Pipeline. A zero timeout means ten minutes.
func NewPipeline(uploader Uploader, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) *Pipeline {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Pipeline{
		uploader: uploader,
		timeout:  timeout,
		log:      log.WithComponent("upload"),
		metrics:  m,
	}
}

// Run uploads atts and returns their references in the same order. Any failure, including
// a backend that returns the wrong number of references, is an UploadFailure and no
// references are returned.
func (p *Pipeline) Run(ctx context.Context, atts []models.Attachment) ([]models.UploadedReference, error) {
	if len(atts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	refs, err := p.uploader.Upload(ctx, atts)
	if err == nil && len(refs) != len(atts) {
		err = fmt.Errorf("uploaded %d of %d attachments", len(refs), len(atts))
	}
	elapsed := time.Since(start)

	if err != nil {
		p.metrics.UploadDuration.WithLabelValues(metrics.ResultError).Observe(elapsed.Seconds())
		p.log.LogError(err, "attachment upload failed", "count", len(atts))
		return nil, apperrors.NewUploadFailure(err)
	}

	p.metrics.UploadDuration.WithLabelValues(metrics.ResultOK).Observe(elapsed.Seconds())
	p.log.Debug("attachments uploaded", "count", len(atts), "duration", elapsed.String())
	return refs, nil
}
