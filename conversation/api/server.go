package api

import (
	"context"
	"time"

	"ai-productivity-app/assistant/conversation/repository"
	"ai-productivity-app/assistant/conversation/service"
	"ai-productivity-app/assistant/pkg/config"
	"ai-productivity-app/assistant/pkg/health"
	"ai-productivity-app/assistant/pkg/jwt"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/middleware"
	"ai-productivity-app/assistant/pkg/router"
)

// ServerOptions are the collaborators of the dev server
type ServerOptions struct {
	Config    *config.Config
	Store     repository.Store
	Responder service.Responder
	JWT       *jwt.Service
	Log       *logger.Logger
}

const healthInterval = 30 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// NewServer assembles the dev server: middleware chain, schema validation, health checks
// and the conversation and file routes
func NewServer(opts ServerOptions) (*router.Router, error) {
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	files, err := NewFileHandler(cfg.Server.StorageDir, 0, log.WithComponent("files"))
	if err != nil {
		return nil, err
	}

	checker := health.NewChecker(log, healthInterval)
	checker.RegisterStoreCheck(opts.Store.Ping)
	checker.RegisterDirCheck("storage", files.Writable)
	if p, ok := opts.Responder.(pinger); ok {
		checker.RegisterCheck("responder", false, func(ctx context.Context) (health.Status, string, error) {
			if err := p.Ping(ctx); err != nil {
				return health.StatusDegraded, "Responder unreachable", err
			}
			return health.StatusUp, "Responder is reachable", nil
		})
	}
	checker.RunChecks(context.Background())

	r := router.New(cfg, log, checker)
	// Validation must be installed before routes are registered
	r.AddOpenAPIValidation(cfg.Server.OpenAPISchema)

	svc := service.NewConversationService(service.Options{
		Store:          opts.Store,
		Responder:      opts.Responder,
		MaxUserPrompts: cfg.Server.MaxUserPrompts,
		QuotaStatus:    cfg.API.QuotaStatus,
		Log:            log.WithComponent("conversation-service"),
	})

	jwtService := opts.JWT
	if jwtService == nil {
		jwtService = jwt.NewService(cfg.Server.JWTSecret, cfg.Server.JWTExpiry)
	}

	RegisterRoutes(r.Engine, NewConversationHandler(svc), files, middleware.JWTAuthMiddleware(jwtService, log))
	return r, nil
}
