package router

import (
	"os"
	"path/filepath"

	"ai-productivity-app/assistant/pkg/validator"
)

// AddOpenAPIValidation validates requests against the schema and serves it under /api/docs.
// A missing or broken schema is logged and validation stays off.
func (r *Router) AddOpenAPIValidation(schemaPath string) bool {
	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		r.Logger.Warn("openapi schema not found, skipping validation", "path", schemaPath)
		return false
	}

	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.Error("failed to initialize openapi validator", "error", err)
		return false
	}

	r.Engine.Use(v.Middleware())
	r.Logger.Info("openapi validation enabled", "schema", schemaPath)

	r.Engine.StaticFile("/api/docs/"+filepath.Base(schemaPath), schemaPath)
	return true
}
