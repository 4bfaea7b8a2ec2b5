package api

import (
	"time"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// WorkerView is a registered worker as listed by the API
type WorkerView struct {
	entities.WorkerDescriptor
	Alive      bool    `json:"alive"`
	AgeSeconds float64 `json:"age_seconds"`
}

// SatelliteView is a live satellite connection as listed by the API
type SatelliteView struct {
	ConnectionID string `json:"connection_id"`
	State        string `json:"state"`
	SatelliteID  string `json:"satellite_id,omitempty"`
	Area         string `json:"area,omitempty"`
	Language     string `json:"language,omitempty"`
}

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status          string    `json:"status"`
	Service         string    `json:"service"`
	Time            time.Time `json:"time"`
	AliveWorkers    int       `json:"alive_workers"`
	Satellites      int       `json:"satellites"`
	ActivePipelines int       `json:"active_pipelines"`
}
