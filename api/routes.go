package api

import (
	"errors"
	"os"
	"strings"
)

func (s *Server) registerRoutes() error {
	if s == nil || s.router == nil {
		return nil
	}

	api := s.router.Group("/api")
	apiKey := strings.TrimSpace(os.Getenv("CARTRIDGES_API_KEY"))
	if apiKey != "" {
		api.Use(apiKeyAuthMiddleware(apiKey))
	} else if strings.EqualFold(strings.TrimSpace(os.Getenv("CARTRIDGES_DISABLE_AUTH")), "true") {
		// Explicitly allow unauthenticated access.
	} else {
		return errors.New("api: missing auth configuration: set CARTRIDGES_API_KEY or set CARTRIDGES_DISABLE_AUTH=true")
	}

	api.GET("/health", s.handleHealth)

	api.GET("/datasets", s.handleListDatasets)

	api.GET("/runs", s.handleListRuns)
	api.GET("/runs/:id", s.handleGetRun)
	api.GET("/runs/:id/samples", s.handleGetRunSamples)
	api.GET("/runs/:id/metrics", s.handleGetRunMetrics)

	api.GET("/history/:dataset", s.handleGetDatasetHistory)

	return nil
}
