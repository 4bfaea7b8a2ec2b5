package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/internal/satellite"
)

type clientOptions struct {
	url        string
	token      string
	id         string
	area       string
	language   string
	sampleRate int
	channels   int
	frameMs    int
	outputDir  string
	realtime   bool
	timeout    time.Duration
	debug      bool
}

// newRootCmd creates the arunika-satellite command.
func newRootCmd() *cobra.Command {
	opts := clientOptions{}
	cmd := &cobra.Command{
		Use:   "arunika-satellite <audio.wav|audio.pcm> [more...]",
		Short: "Send recorded utterances to the core as a satellite",
		Long: "arunika-satellite connects to the core, performs the hello handshake and\n" +
			"sends each file as one session. Replies are saved as WAV files.\n" +
			"Raw .pcm input is read as pcm_s16le in the --sample-rate/--channels format.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", envOr("CORE_WS_URL", "ws://localhost:8080/ws/satellite"), "core websocket URL")
	flags.StringVar(&opts.token, "token", os.Getenv("SATELLITE_TOKEN"), "satellite-role bearer token")
	flags.StringVar(&opts.id, "id", "cli-satellite", "satellite id")
	flags.StringVar(&opts.area, "area", "desk", "area the satellite is placed in")
	flags.StringVar(&opts.language, "language", "en-US", "BCP-47 language")
	flags.IntVar(&opts.sampleRate, "sample-rate", 16000, "sample rate of raw input")
	flags.IntVar(&opts.channels, "channels", 1, "channels of raw input")
	flags.IntVar(&opts.frameMs, "frame-ms", 20, "frame duration")
	flags.StringVar(&opts.outputDir, "output", "audio_responses", "directory for reply WAV files")
	flags.BoolVar(&opts.realtime, "realtime", false, "pace frames at their real duration")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "how long to wait for each reply")
	flags.BoolVar(&opts.debug, "debug", false, "development logging")

	return cmd
}

func runClient(cmd *cobra.Command, opts clientOptions, files []string) error {
	logger, err := newLogger(opts.debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	headers := http.Header{}
	if opts.token != "" {
		headers.Set("Authorization", "Bearer "+opts.token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(opts.url, headers)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.url, err)
	}

	client := &satelliteClient{
		conn:     conn,
		realtime: opts.realtime,
		timeout:  opts.timeout,
		logger:   logger,
	}
	defer client.close()

	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, file := range files {
		pcm, format, err := loadAudio(file, opts)
		if err != nil {
			return err
		}

		client.hello = satellite.HelloMessage{
			SatelliteID: opts.id,
			Area:        opts.area,
			Language:    opts.language,
			Capabilities: satellite.Capabilities{
				Speaker:         true,
				SupportsBargeIn: true,
			},
			AudioFormat: format,
		}
		// Every session ends back in Connected, so each file starts with hello
		if err := client.handshake(); err != nil {
			return err
		}

		sessionID := uuid.NewString()
		result, err := client.speak(sessionID, pcm)
		var protocolErr *ProtocolError
		if errors.As(err, &protocolErr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", file, err)
			continue
		}
		if err != nil {
			return err
		}

		out := filepath.Join(opts.outputDir, sessionID+".wav")
		if err := saveReply(out, result); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d frames)\n", file, out, result.Frames)
	}
	return nil
}

// loadAudio reads a WAV file, or raw pcm_s16le in the flag-given format
func loadAudio(path string, opts clientOptions) ([]byte, entities.AudioFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, entities.AudioFormat{}, fmt.Errorf("read %s: %w", path, err)
	}

	format := entities.AudioFormat{
		Encoding:   entities.EncodingPCMS16LE,
		SampleRate: opts.sampleRate,
		Channels:   opts.channels,
		FrameMs:    opts.frameMs,
	}

	pcm, info, err := readWAV(data)
	switch {
	case errors.Is(err, errNotWAV):
		return data, format, nil
	case err != nil:
		return nil, entities.AudioFormat{}, fmt.Errorf("%s: %w", path, err)
	case info.BitsPerSample != 16:
		return nil, entities.AudioFormat{}, fmt.Errorf("%s: %d-bit audio, want 16-bit", path, info.BitsPerSample)
	}
	format.SampleRate = info.SampleRate
	format.Channels = info.Channels
	return pcm, format, nil
}

func saveReply(path string, r *reply) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := writeWAV(f, r.Audio, r.Format.SampleRate, r.Format.Channels); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
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
