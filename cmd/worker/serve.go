package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/adapters/llm"
	"github.com/satriahrh/arunika-core/adapters/mock"
	"github.com/satriahrh/arunika-core/adapters/stt"
	"github.com/satriahrh/arunika-core/adapters/tts"
	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/internal/workerrt"
)

// Backends a worker can serve
const (
	backendMock       = "mock"
	backendGemini     = "gemini"
	backendGoogle     = "google"
	backendElevenLabs = "elevenlabs"
)

type serveOptions struct {
	workerType string
	speciality string
	backend    string
	port       int
	endpoint   string
	coreURL    string
	token      string
	workerID   string
	debug      bool
}

// newServeCmd creates the "arunika-worker serve" subcommand.
func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one pipeline stage and register with the core",
		Long: "Serve starts the /infer endpoint for the chosen stage and backend,\n" +
			"registers with the core and heartbeats until interrupted.\n\n" +
			"  arunika-worker serve --type llm:coding --backend gemini --port 9003",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.workerType, "type", "", "stage to serve: stt, router, llm[:speciality] or tts")
	flags.StringVar(&opts.speciality, "speciality", "", "LLM specialities, e.g. General|Coding")
	flags.StringVar(&opts.backend, "backend", backendMock, "backend: mock, gemini, google or elevenlabs")
	flags.IntVar(&opts.port, "port", 9000, "port to listen on")
	flags.StringVar(&opts.endpoint, "endpoint", "", "URL the core should call (default http://localhost:<port>)")
	flags.StringVar(&opts.coreURL, "core", envOr("CORE_URL", "http://localhost:8080"), "core base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("WORKER_TOKEN"), "worker-role bearer token")
	flags.StringVar(&opts.workerID, "id", "", "worker id to register with (default assigned by the core)")
	flags.BoolVar(&opts.debug, "debug", false, "development logging")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	logger, err := newLogger(opts.debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	workerType, speciality, err := entities.ParseWorkerSpec(opts.workerType)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if opts.speciality != "" {
		extra, err := entities.ParseSpecialities(opts.speciality)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		speciality |= extra
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, model, err := newHandler(ctx, workerType, opts.backend, logger)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	endpoint := opts.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("http://localhost:%d", opts.port)
	}

	server := workerrt.NewServer(workerType, handler, logger)
	registrar := workerrt.NewRegistrar(workerrt.RegistrarConfig{
		CoreURL: opts.coreURL,
		Registration: domain.RegisterWorkerRequest{
			WorkerID:   opts.workerID,
			Type:       workerType.String(),
			Endpoint:   endpoint,
			Speciality: specialityField(speciality),
			Capabilities: &entities.WorkerCapabilities{
				SupportsTools: workerType == entities.WorkerTypeLLM,
				Models:        []string{model},
			},
		},
		Token: opts.token,
	}, nil, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(fmt.Sprintf(":%d", opts.port))
	}()
	go registrar.Run(ctx)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Worker is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newHandler builds the /infer handler for the stage served by backend
func newHandler(ctx context.Context, workerType entities.WorkerType, backend string, logger *zap.Logger) (echo.HandlerFunc, string, error) {
	switch {
	case backend == backendMock:
		switch workerType {
		case entities.WorkerTypeSTT:
			return workerrt.SpeechToTextHandler(mock.NewSpeechToText(logger), logger), mock.ModelName, nil
		case entities.WorkerTypeRouter:
			return workerrt.RouterHandler(mock.NewRouter(logger), logger), mock.ModelName, nil
		case entities.WorkerTypeLLM:
			return workerrt.LanguageModelHandler(mock.NewLanguageModel(logger), logger), mock.ModelName, nil
		case entities.WorkerTypeTTS:
			return workerrt.TextToSpeechHandler(mock.NewTextToSpeech(logger), logger), mock.ModelName, nil
		}

	case backend == backendGemini && (workerType == entities.WorkerTypeLLM || workerType == entities.WorkerTypeRouter):
		gemini, err := llm.NewGemini(ctx, llm.NewGeminiConfigFromEnv(), logger)
		if err != nil {
			return nil, "", err
		}
		if workerType == entities.WorkerTypeRouter {
			return workerrt.RouterHandler(gemini, logger), gemini.Model(), nil
		}
		return workerrt.LanguageModelHandler(gemini, logger), gemini.Model(), nil

	case backend == backendGoogle && workerType == entities.WorkerTypeSTT:
		google, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			return nil, "", err
		}
		return workerrt.SpeechToTextHandler(google, logger), google.Model(), nil

	case backend == backendElevenLabs && workerType == entities.WorkerTypeTTS:
		elevenLabs, err := tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
		if err != nil {
			return nil, "", err
		}
		return workerrt.TextToSpeechHandler(elevenLabs, logger), elevenLabs.Model(), nil
	}

	return nil, "", fmt.Errorf("backend %q cannot serve %s", backend, workerType)
}

func specialityField(s entities.Speciality) string {
	if s == entities.SpecialityNone {
		return ""
	}
	return s.String()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
