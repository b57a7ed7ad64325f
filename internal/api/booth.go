package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/lensnode/internal/api/models"
	"github.com/smazurov/lensnode/internal/booth"
)

func (s *Server) registerBoothRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-booth",
		Method:      http.MethodGet,
		Path:        "/api/booth",
		Summary:     "Booth State",
		Description: "Current lifecycle status, output surface, selectors, bound camera and applied lens",
		Tags:        []string{"booth"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.BoothResponse, error) {
		return &models.BoothResponse{Body: s.booth.Snapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-camera",
		Method:      http.MethodPut,
		Path:        "/api/booth/camera",
		Summary:     "Select Camera",
		Description: "Bind a camera as the session source. A newer selection supersedes one still in progress.",
		Tags:        []string{"booth"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 503},
	}, func(ctx context.Context, input *models.SelectCameraInput) (*models.BoothResponse, error) {
		if err := s.booth.SelectCamera(ctx, input.Body.DeviceID); err != nil {
			return nil, boothError(err)
		}
		return &models.BoothResponse{Body: s.booth.Snapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-lens",
		Method:      http.MethodPut,
		Path:        "/api/booth/lens",
		Summary:     "Select Lens",
		Description: "Apply a lens from the loaded catalog",
		Tags:        []string{"booth"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 409, 502},
	}, func(ctx context.Context, input *models.SelectLensInput) (*models.BoothResponse, error) {
		if err := s.booth.SelectLens(ctx, input.Body.LensID); err != nil {
			return nil, boothError(err)
		}
		return &models.BoothResponse{Body: s.booth.Snapshot()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "retry-booth",
		Method:      http.MethodPost,
		Path:        "/api/booth/retry",
		Summary:     "Retry",
		Description: "Restart a failed booth, or rebind the last working camera of a running one",
		Tags:        []string{"booth"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 502, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.BoothResponse, error) {
		if err := s.booth.Retry(ctx); err != nil {
			return nil, boothError(err)
		}
		return &models.BoothResponse{Body: s.booth.Snapshot()}, nil
	})
}

// boothError maps booth errors to HTTP status codes.
func boothError(err error) error {
	var boothErr *booth.Error
	switch {
	case errors.Is(err, booth.ErrUnknownDevice), errors.Is(err, booth.ErrUnknownLens):
		return huma.Error404NotFound(err.Error(), err)
	case errors.Is(err, booth.ErrNotStarted):
		return huma.Error409Conflict("booth is not running", err)
	case errors.Is(err, booth.ErrAlreadyStarted):
		return huma.Error409Conflict("booth is already starting", err)
	case errors.Is(err, booth.ErrSuperseded):
		return huma.Error409Conflict("superseded by a newer selection", err)
	case errors.Is(err, booth.ErrCaptureUnavailable):
		return huma.Error503ServiceUnavailable(err.Error(), err)
	case errors.As(err, &boothErr):
		return huma.Error502BadGateway(boothErr.Error(), err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}
