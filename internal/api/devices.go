package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/lensnode/internal/api/models"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "Enumerate video inputs, or every media device with kind=all",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *models.DevicesInput) (*models.DevicesResponse, error) {
		devices, err := s.booth.Devices(ctx, input.Kind == "all")
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to enumerate devices", err)
		}

		data := make([]models.DeviceData, 0, len(devices))
		for _, d := range devices {
			data = append(data, models.DeviceData{
				DeviceID: d.DeviceID,
				Kind:     d.Kind.String(),
				Label:    d.Label,
			})
		}
		return &models.DevicesResponse{
			Body: models.DeviceListData{Devices: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-lenses",
		Method:      http.MethodGet,
		Path:        "/api/lenses",
		Summary:     "List Lenses",
		Description: "The lens catalog loaded at startup",
		Tags:        []string{"lenses"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LensesResponse, error) {
		lenses := s.booth.Lenses()
		return &models.LensesResponse{
			Body: models.LensListData{Lenses: lenses, Count: len(lenses)},
		}, nil
	})
}
