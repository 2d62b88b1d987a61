package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ai-productivity-app/assistant/attachment/cache"
	"ai-productivity-app/assistant/attachment/staging"
	"ai-productivity-app/assistant/attachment/upload"
	"ai-productivity-app/assistant/conversation/client"
	"ai-productivity-app/assistant/conversation/feedback"
	"ai-productivity-app/assistant/conversation/history"
	"ai-productivity-app/assistant/conversation/session"
	"ai-productivity-app/assistant/pkg/config"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/metrics"
	"ai-productivity-app/assistant/pkg/resilience"
	"ai-productivity-app/assistant/pkg/secrets"
	"ai-productivity-app/assistant/shared/redis"

	"github.com/prometheus/client_golang/prometheus"
)

// Container holds the client-side components wired from one Config
type Container struct {
	Config    *config.Config
	Logger    *logger.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Client    *client.Client
	Directory *client.Directory
	Staging   *staging.Area
	Uploads   *upload.Pipeline
	Cache     *cache.Cache
	History   *history.Controller
	Feedback  *feedback.Register
	Session   *session.Manager

	closers []func() error
}

// Options overrides collaborators that live outside the container
type Options struct {
	// ReportFlow receives thumbs-down requests; nil rejects them
	ReportFlow feedback.ReportFlow
	HTTPClient *http.Client
	AppContext map[string]any
}

// New creates a new dependency injection container
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Container, error) {
	if log == nil {
		log = logger.Nop()
	}

	c := &Container{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
	}
	c.Metrics = metrics.New(c.Registry)

	if err := c.build(ctx, opts); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, opts Options) error {
	cfg := c.Config
	log := c.Logger

	// Bearer token from Vault when enabled, else the environment, else API_TOKEN
	vault, err := secrets.NewVaultManager(secrets.VaultConfigFromEnv(cfg.Vault.Enabled), log)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	c.closers = append(c.closers, func() error { vault.Close(); return nil })

	breakerCfg := resilience.DefaultCircuitBreakerConfig("conversation-api")
	breakerCfg.FailureThreshold = cfg.Breaker.FailureThreshold
	breakerCfg.RetryTimeout = cfg.Breaker.RetryTimeout
	breaker := resilience.NewCircuitBreaker(breakerCfg, log)
	downloads := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("attachment-downloads"), log)
	c.Registry.MustRegister(metrics.NewBreakerCollector(breaker.Stats, downloads.Stats))

	c.Client = client.New(client.Options{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.Timeout,
		SendTimeout:     cfg.API.SendTimeout,
		UploadTimeout:   cfg.API.UploadTimeout,
		Tokens:          secrets.NewTokenSource(vault, cfg.Vault.TokenKey, cfg.API.Token),
		HTTPClient:      opts.HTTPClient,
		Breaker:         breaker,
		DownloadBreaker: downloads,
		Log:             log,
	})
	c.Directory = client.NewDirectory(c.Client, cfg.API.PageSize)
	c.Staging = staging.New()

	uploader, err := c.uploader(ctx)
	if err != nil {
		return err
	}
	c.Uploads = upload.NewPipeline(uploader, cfg.API.UploadTimeout, log, c.Metrics)

	c.Cache, err = cache.New(cfg.Cache.Dir, c.Client, cache.Options{
		IndexTTL:        cfg.Cache.TTL,
		IndexSize:       cfg.Cache.MaxSize,
		PurgeWindow:     cfg.Cache.PurgeWindow,
		DownloadTimeout: cfg.API.UploadTimeout,
		Log:             log,
		Metrics:         c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("attachment cache: %w", err)
	}
	c.closers = append(c.closers, func() error { c.Cache.Close(); return nil })

	c.History = history.NewController(c.Client, cfg.API.PageSize, log, c.Metrics)

	store, err := c.feedbackStore()
	if err != nil {
		return err
	}
	c.Feedback = feedback.NewRegister(store, opts.ReportFlow, c.Client, log)

	c.Session = session.NewManager(session.Options{
		Sender:      c.Client,
		Uploader:    c.Uploads,
		Pager:       c.History,
		Directory:   c.Directory,
		Feedback:    c.Feedback,
		Staging:     c.Staging,
		QuotaStatus: cfg.API.QuotaStatus,
		AppContext:  opts.AppContext,
		Log:         log,
		Metrics:     c.Metrics,
	})
	c.closers = append(c.closers, func() error { c.Session.Close(); return nil })
	return nil
}

func (c *Container) uploader(ctx context.Context) (upload.Uploader, error) {
	cfg := c.Config
	switch cfg.Upload.Backend {
	case "gcs":
		if cfg.Upload.Bucket == "" {
			return nil, errors.New("UPLOAD_GCS_BUCKET is required for the gcs upload backend")
		}
		store, err := upload.NewGCSStore(ctx, cfg.Upload.Bucket)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		c.closers = append(c.closers, store.Close)
		return upload.NewGCSUploader(store, cfg.Upload.Prefix, cfg.Upload.Concurrency, c.Logger), nil
	case "http", "":
		return upload.NewHTTPUploader(c.Client, cfg.Upload.Endpoint), nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Upload.Backend)
	}
}

func (c *Container) feedbackStore() (feedback.Store, error) {
	cfg := c.Config
	switch cfg.Feedback.Store {
	case "redis":
		rc, err := redis.NewRedisClient(cfg.Feedback.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		c.closers = append(c.closers, rc.Close)
		return feedback.NewRedisStore(rc, ""), nil
	case "memory", "":
		return feedback.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown feedback store %q", cfg.Feedback.Store)
	}
}

// Close releases everything the container opened, newest first
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
