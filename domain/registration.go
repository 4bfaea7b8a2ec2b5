package domain

import "github.com/satriahrh/arunika-core/domain/entities"

// RegisterWorkerRequest is what a worker POSTs to the core's
// /worker/register. Type accepts the "type[:speciality]" form.
type RegisterWorkerRequest struct {
	WorkerID     string                       `json:"worker_id,omitempty"`
	Type         string                       `json:"type"`
	Endpoint     string                       `json:"endpoint"`
	Speciality   string                       `json:"speciality,omitempty"`
	Capabilities *entities.WorkerCapabilities `json:"capabilities,omitempty"`
}

// RegisterWorkerResponse answers a registration
type RegisterWorkerResponse struct {
	Accepted bool   `json:"accepted"`
	WorkerID string `json:"worker_id"`
}

// HeartbeatRequest keeps a registered worker alive
type HeartbeatRequest struct {
	WorkerID string `json:"worker_id"`
}

// ErrorResponse is the JSON error body of both the core and worker HTTP APIs
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
