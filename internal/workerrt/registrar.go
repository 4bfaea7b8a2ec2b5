package workerrt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain"
)

const (
	DefaultRetryInterval     = 2 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

var (
	errUnknownWorker = errors.New("worker unknown to core")
	errNotAccepted   = errors.New("registration not accepted")
)

// RegistrarConfig configures how a worker announces itself to the core
type RegistrarConfig struct {
	CoreURL           string
	Registration      domain.RegisterWorkerRequest
	Token             string
	RetryInterval     time.Duration
	HeartbeatInterval time.Duration
}

// Registrar keeps a worker registered with the core: it registers until
// accepted, heartbeats periodically and registers again when the core has
// forgotten the worker.
type Registrar struct {
	config     RegistrarConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu       sync.Mutex
	workerID string
}

// NewRegistrar creates a registrar
func NewRegistrar(config RegistrarConfig, httpClient *http.Client, logger *zap.Logger) *Registrar {
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	config.CoreURL = strings.TrimRight(config.CoreURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Registrar{config: config, httpClient: httpClient, logger: logger}
}

// WorkerID returns the id assigned by the core, empty before registration
func (r *Registrar) WorkerID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.workerID
}

// Run blocks until ctx is cancelled
func (r *Registrar) Run(ctx context.Context) error {
	for {
		if err := r.registerUntilAccepted(ctx); err != nil {
			return err
		}
		if err := r.heartbeatLoop(ctx); !errors.Is(err, errUnknownWorker) {
			return err
		}
		r.logger.Warn("Core no longer knows this worker, registering again",
			zap.String("workerID", r.WorkerID()))
	}
}

func (r *Registrar) registerUntilAccepted(ctx context.Context) error {
	for {
		id, err := r.register(ctx)
		if err == nil {
			r.mu.Lock()
			r.workerID = id
			r.mu.Unlock()
			r.logger.Info("Registered with core",
				zap.String("workerID", id),
				zap.String("coreURL", r.config.CoreURL),
				zap.String("type", r.config.Registration.Type))
			return nil
		}

		r.logger.Warn("Registration failed, retrying",
			zap.Duration("retryIn", r.config.RetryInterval),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.RetryInterval):
		}
	}
}

func (r *Registrar) register(ctx context.Context) (string, error) {
	req := r.config.Registration
	req.WorkerID = r.WorkerID()

	resp, err := r.post(ctx, "/worker/register", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("core returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out domain.RegisterWorkerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode registration response: %w", err)
	}
	if !out.Accepted || out.WorkerID == "" {
		return "", errNotAccepted
	}
	return out.WorkerID, nil
}

func (r *Registrar) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.heartbeat(ctx); err != nil {
				if errors.Is(err, errUnknownWorker) || ctx.Err() != nil {
					return err
				}
				r.logger.Warn("Heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (r *Registrar) heartbeat(ctx context.Context) error {
	resp, err := r.post(ctx, "/worker/heartbeat", domain.HeartbeatRequest{WorkerID: r.WorkerID()})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return errUnknownWorker
	default:
		return fmt.Errorf("core returned status %d", resp.StatusCode)
	}
}

func (r *Registrar) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.CoreURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.Token)
	}
	return r.httpClient.Do(req)
}
