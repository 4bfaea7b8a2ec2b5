package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
)

const (
	// InferPath is appended to a worker endpoint for every inference call
	InferPath = "/infer"

	defaultTimeout = 60 * time.Second
	maxErrorBody   = 4096
)

// StatusError is returned when a worker answers with a non-2xx status
type StatusError struct {
	WorkerID   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("worker %s returned status %d: %s", e.WorkerID, e.StatusCode, e.Body)
}

// NewHTTPClient returns the client shared by every worker client.
// A non-positive timeout selects the default of 60s.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Client performs worker calls over HTTP
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client on top of httpClient
func New(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &Client{httpClient: httpClient, logger: logger}
}

func post[Req any, Out any](ctx context.Context, c *Client, worker entities.WorkerDescriptor, req Req) (*domain.WorkerResponse[Out], error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(worker.Endpoint, "/") + InferPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("worker %s: %w", worker.WorkerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{WorkerID: worker.WorkerID, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out domain.WorkerResponse[Out]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("worker %s: malformed response: %w", worker.WorkerID, err)
	}
	if err := out.Err(); err != nil {
		return nil, fmt.Errorf("worker %s: %w", worker.WorkerID, err)
	}

	c.logger.Debug("Worker call completed",
		zap.String("workerID", worker.WorkerID),
		zap.String("type", worker.Type.String()),
		zap.String("model", out.Usage.Model),
		zap.Int64("workerLatencyMs", out.Usage.LatencyMs),
		zap.Duration("elapsed", time.Since(start)))
	return &out, nil
}

// STT calls speech-to-text workers
type STT struct{ *Client }

// Router calls routing workers
type Router struct{ *Client }

// LLM calls language model workers
type LLM struct{ *Client }

// TTS calls text-to-speech workers
type TTS struct{ *Client }

var (
	_ repositories.SpeechToTextClient  = STT{}
	_ repositories.RouterClient        = Router{}
	_ repositories.LanguageModelClient = LLM{}
	_ repositories.TextToSpeechClient  = TTS{}
)

func (c STT) Infer(ctx context.Context, worker entities.WorkerDescriptor, req domain.SttRequest) (*domain.SttResponse, error) {
	return post[domain.SttRequest, domain.SttOutput](ctx, c.Client, worker, req)
}

func (c Router) Infer(ctx context.Context, worker entities.WorkerDescriptor, req domain.RouterRequest) (*domain.RouterResponse, error) {
	return post[domain.RouterRequest, domain.RouterOutput](ctx, c.Client, worker, req)
}

func (c LLM) Infer(ctx context.Context, worker entities.WorkerDescriptor, req domain.LlmRequest) (*domain.LlmResponse, error) {
	return post[domain.LlmRequest, domain.LlmOutput](ctx, c.Client, worker, req)
}

func (c TTS) Infer(ctx context.Context, worker entities.WorkerDescriptor, req domain.TtsRequest) (*domain.TtsResponse, error) {
	return post[domain.TtsRequest, domain.TtsOutput](ctx, c.Client, worker, req)
}
