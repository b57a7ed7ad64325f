package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/lensnode/internal/api/models"
	"github.com/smazurov/lensnode/internal/metrics"
)

func (s *Server) registerMetricsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-booth-metrics",
		Method:      http.MethodGet,
		Path:        "/api/metrics/booth",
		Summary:     "Booth Metrics",
		Description: "Bind, capture failure and lens counters as JSON. Prometheus scrapes /metrics.",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.BoothMetricsResponse, error) {
		return &models.BoothMetricsResponse{Body: metrics.Get()}, nil
	})
}
