package models

import (
	"github.com/smazurov/lensnode/internal/booth"
	"github.com/smazurov/lensnode/internal/lenskit"
	"github.com/smazurov/lensnode/internal/logging"
	"github.com/smazurov/lensnode/internal/metrics"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Phase   string `json:"phase" example:"running" doc:"Booth lifecycle phase"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target OS/architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Booth models
type BoothResponse struct {
	Body booth.Snapshot
}

type SelectCameraInput struct {
	Body struct {
		DeviceID string `json:"device_id" minLength:"1" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Camera to bind"`
	}
}

type SelectLensInput struct {
	Body struct {
		LensID string `json:"lens_id" minLength:"1" example:"lens-19" doc:"Catalog lens to apply"`
	}
}

// Device models
type DeviceData struct {
	DeviceID string `json:"device_id" example:"usb-046d_HD_Pro_Webcam_C920-video-index0" doc:"Stable device identifier"`
	Kind     string `json:"kind" example:"videoinput" enum:"videoinput,audioinput,audiooutput" doc:"Device kind"`
	Label    string `json:"label" example:"HD Pro Webcam C920" doc:"Display name, may be empty"`
}

type DeviceListData struct {
	Devices []DeviceData `json:"devices" doc:"Devices in enumeration order"`
	Count   int          `json:"count" example:"2" doc:"Number of devices"`
}

type DevicesInput struct {
	Kind string `query:"kind" enum:"video,all" default:"video" doc:"video lists cameras only; all includes audio devices"`
}

type DevicesResponse struct {
	Body DeviceListData
}

// Lens models
type LensListData struct {
	Lenses []lenskit.Lens `json:"lenses" doc:"Loaded catalog in display order"`
	Count  int            `json:"count" example:"25" doc:"Number of lenses"`
}

type LensesResponse struct {
	Body LensListData
}

// Log models
type LogsInput struct {
	Limit  int    `query:"limit" minimum:"1" maximum:"10000" default:"200" doc:"Maximum number of entries, newest last"`
	Level  string `query:"level" enum:"debug,info,warn,error" doc:"Minimum level to include"`
	Module string `query:"module" example:"booth" doc:"Only entries from this module"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Buffered log entries"`
	Count   int                `json:"count" example:"200" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsResponse struct {
	Body struct {
		Levels map[string]string `json:"levels" doc:"Effective level of every module logger"`
	}
}

// Metrics models
type BoothMetricsResponse struct {
	Body metrics.BoothMetrics
}
