package workerrt

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
)

// Server exposes one backend as a worker /infer endpoint
type Server struct {
	echo   *echo.Echo
	stage  entities.WorkerType
	logger *zap.Logger
}

// NewServer creates a worker server for stage served by handler
func NewServer(stage entities.WorkerType, handler echo.HandlerFunc, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"type":   stage.String(),
		})
	})
	e.POST("/infer", handler)

	return &Server{echo: e, stage: stage, logger: logger}
}

// Handler returns the HTTP handler, for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.logger.Info("Worker listening", zap.String("type", s.stage.String()), zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// infer decodes the stage envelope, runs it and reports usage. Backend
// failures are answered in the envelope error field with status 200.
func infer[I, C, X, O any](run func(context.Context, domain.WorkerRequest[I, C, X]) (O, error), model func() string, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.WorkerRequest[I, C, X]
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, domain.ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid request format",
			})
		}

		start := time.Now()
		output, err := run(c.Request().Context(), req)
		resp := domain.WorkerResponse[O]{
			RequestID: req.RequestID,
			Usage: domain.WorkerUsage{
				Model:     model(),
				LatencyMs: time.Since(start).Milliseconds(),
			},
			Output: output,
		}
		if err != nil {
			logger.Error("Inference failed", zap.String("requestID", req.RequestID), zap.Error(err))
			resp.Error = err.Error()
		} else {
			logger.Info("Inference completed",
				zap.String("requestID", req.RequestID),
				zap.Int64("latencyMs", resp.Usage.LatencyMs))
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// SpeechToTextHandler serves an STT backend
func SpeechToTextHandler(backend repositories.SpeechToText, logger *zap.Logger) echo.HandlerFunc {
	return infer(func(ctx context.Context, req domain.SttRequest) (domain.SttOutput, error) {
		return backend.Transcribe(ctx, req.Input, req.Config)
	}, backend.Model, logger)
}

// RouterHandler serves a routing backend
func RouterHandler(backend repositories.Router, logger *zap.Logger) echo.HandlerFunc {
	return infer(func(ctx context.Context, req domain.RouterRequest) (domain.RouterOutput, error) {
		return backend.Route(ctx, req.Input, req.Config)
	}, backend.Model, logger)
}

// LanguageModelHandler serves an LLM backend
func LanguageModelHandler(backend repositories.LargeLanguageModel, logger *zap.Logger) echo.HandlerFunc {
	return infer(func(ctx context.Context, req domain.LlmRequest) (domain.LlmOutput, error) {
		return backend.Generate(ctx, req.Input, req.Config)
	}, backend.Model, logger)
}

// TextToSpeechHandler serves a TTS backend
func TextToSpeechHandler(backend repositories.TextToSpeech, logger *zap.Logger) echo.HandlerFunc {
	return infer(func(ctx context.Context, req domain.TtsRequest) (domain.TtsOutput, error) {
		return backend.Synthesize(ctx, req.Input, req.Config)
	}, backend.Model, logger)
}
