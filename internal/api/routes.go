package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
	"github.com/satriahrh/arunika-core/internal/auth"
	"github.com/satriahrh/arunika-core/internal/chat"
	"github.com/satriahrh/arunika-core/internal/registry"
	"github.com/satriahrh/arunika-core/internal/satellite"
)

const defaultHistoryLimit = 20

// Dependencies are the collaborators served over HTTP
type Dependencies struct {
	Registry   *registry.Registry
	Satellites *satellite.Manager
	Chat       *chat.Manager
	// Archive is nil when no chat archive is configured
	Archive    repositories.ChatArchive
	AuthSecret []byte
	Logger     *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	h := &handlers{Dependencies: deps}

	// Health check
	e.GET("/health", h.health)

	workerAuth := auth.RequireRole(deps.AuthSecret, auth.RoleWorker)
	readAuth := auth.RequireRole(deps.AuthSecret, auth.RoleWorker, auth.RoleSatellite)

	// Worker APIs
	e.POST("/worker/register", h.registerWorker, workerAuth)
	e.POST("/worker/heartbeat", h.heartbeat, workerAuth)
	e.GET("/worker", h.listWorkers, readAuth)

	// Satellite APIs
	e.GET("/satellites", h.listSatellites, readAuth)
	e.GET("/ws/satellite", deps.Satellites.HandleWebSocket, auth.RequireRole(deps.AuthSecret, auth.RoleSatellite))

	// Chat APIs
	e.GET("/chat", h.currentChat, readAuth)
	e.GET("/chat/history", h.chatHistory, readAuth)
}

type handlers struct {
	Dependencies
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:          "ok",
		Service:         "arunika-core",
		Time:            time.Now().UTC(),
		AliveWorkers:    len(h.Registry.GetAliveWorkers()),
		Satellites:      len(h.Satellites.Connections()),
		ActivePipelines: h.Satellites.ActivePipelines(),
	})
}

func (h *handlers) registerWorker(c echo.Context) error {
	var req domain.RegisterWorkerRequest
	if err := c.Bind(&req); err != nil {
		h.Logger.Warn("Failed to bind worker registration", zap.Error(err))
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	workerType, speciality, err := entities.ParseWorkerSpec(req.Type)
	if err != nil {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid_type", Message: err.Error()})
	}
	if req.Speciality != "" {
		extra, err := entities.ParseSpecialities(req.Speciality)
		if err != nil {
			return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid_speciality", Message: err.Error()})
		}
		speciality |= extra
	}
	if !validEndpoint(req.Endpoint) {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{
			Error:   "invalid_endpoint",
			Message: "Endpoint must be an absolute http or https URL",
		})
	}

	var capabilities entities.WorkerCapabilities
	if req.Capabilities != nil {
		capabilities = *req.Capabilities
	}
	capabilities.Specialities |= speciality
	if workerType == entities.WorkerTypeLLM && capabilities.Specialities == entities.SpecialityNone {
		capabilities.Specialities = entities.SpecialityGeneral
	}

	workerID := req.WorkerID
	if workerID == "" {
		workerID = uuid.NewString()
	}
	h.Registry.Register(entities.WorkerDescriptor{
		WorkerID:     workerID,
		Type:         workerType,
		Endpoint:     req.Endpoint,
		Capabilities: capabilities,
	})

	return c.JSON(http.StatusOK, domain.RegisterWorkerResponse{Accepted: true, WorkerID: workerID})
}

func validEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (h *handlers) heartbeat(c echo.Context) error {
	var req domain.HeartbeatRequest
	if err := c.Bind(&req); err != nil || req.WorkerID == "" {
		return c.JSON(http.StatusBadRequest, domain.ErrorResponse{
			Error:   "invalid_request",
			Message: "worker_id is required",
		})
	}

	if !h.Registry.Heartbeat(req.WorkerID) {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{
			Error:   "unknown_worker",
			Message: "Worker is not registered",
		})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) listWorkers(c echo.Context) error {
	now := time.Now()
	workers := h.Registry.GetAllWorkers()
	views := make([]WorkerView, 0, len(workers))
	for _, w := range workers {
		views = append(views, WorkerView{
			WorkerDescriptor: w,
			Alive:            h.Registry.IsAlive(w),
			AgeSeconds:       w.Age(now).Seconds(),
		})
	}
	return c.JSON(http.StatusOK, views)
}

func (h *handlers) listSatellites(c echo.Context) error {
	ids := h.Satellites.Connections()
	views := make([]SatelliteView, 0, len(ids))
	for _, id := range ids {
		conn, ok := h.Satellites.Connection(id)
		if !ok {
			continue
		}
		view := SatelliteView{ConnectionID: id, State: conn.State().String()}
		if info, ok := conn.Satellite(); ok {
			view.SatelliteID = info.SatelliteID
			view.Area = info.Area
			view.Language = info.Language
		}
		views = append(views, view)
	}
	return c.JSON(http.StatusOK, views)
}

func (h *handlers) currentChat(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Chat.Snapshot())
}

func (h *handlers) chatHistory(c echo.Context) error {
	if h.Archive == nil {
		return c.JSON(http.StatusNotImplemented, domain.ErrorResponse{
			Error:   "archive_disabled",
			Message: "No chat archive is configured",
		})
	}

	limit := defaultHistoryLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, domain.ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be a positive integer",
			})
		}
		limit = n
	}

	chats, err := h.Archive.Recent(c.Request().Context(), limit)
	if err != nil {
		h.Logger.Error("Failed to read chat history", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{
			Error:   "archive_error",
			Message: "Failed to read chat history",
		})
	}
	return c.JSON(http.StatusOK, chats)
}
