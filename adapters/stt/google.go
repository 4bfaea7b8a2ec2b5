package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
)

const (
	modelName    = "google-speech"
	defaultLang  = "en-US"
	sendChunkLen = 32 * 1024
)

var (
	_ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

	ErrNoSpeech = errors.New("no speech detected in audio")
)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	logger *zap.Logger
}

// NewGoogleSpeechToText creates the Google Cloud Speech client using
// application default credentials
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, logger: logger}, nil
}

func (g *GoogleSpeechToText) Model() string { return modelName }

// Close releases the underlying client
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

// Transcribe streams a complete utterance and returns the final transcript
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, input domain.SttInput, config domain.SttConfig) (domain.SttOutput, error) {
	if len(input.Data) == 0 {
		return domain.SttOutput{}, fmt.Errorf("no audio data received")
	}
	recognitionConfig, err := recognitionConfigFor(input, config)
	if err != nil {
		return domain.SttOutput{}, err
	}

	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return domain.SttOutput{}, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:          recognitionConfig,
				InterimResults:  false,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		return domain.SttOutput{}, fmt.Errorf("failed to send streaming config: %w", err)
	}

	for offset := 0; offset < len(input.Data); offset += sendChunkLen {
		end := min(offset+sendChunkLen, len(input.Data))
		if err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: input.Data[offset:end],
			},
		}); err != nil {
			return domain.SttOutput{}, fmt.Errorf("failed to send audio data: %w", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return domain.SttOutput{}, fmt.Errorf("failed to close send stream: %w", err)
	}

	var transcript []string
	var confidence float32
	language := recognitionConfig.LanguageCode
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.SttOutput{}, fmt.Errorf("failed to receive response: %w", err)
		}

		for _, result := range resp.Results {
			if !result.IsFinal || len(result.Alternatives) == 0 {
				continue
			}
			best := result.Alternatives[0]
			transcript = append(transcript, strings.TrimSpace(best.Transcript))
			confidence = best.Confidence
			if result.LanguageCode != "" {
				language = result.LanguageCode
			}
		}
	}

	text := strings.TrimSpace(strings.Join(transcript, " "))
	if text == "" {
		return domain.SttOutput{}, ErrNoSpeech
	}

	g.logger.Info("Transcription completed",
		zap.Int("audioSize", len(input.Data)),
		zap.String("language", language),
		zap.Float32("confidence", confidence))
	return domain.SttOutput{Text: text, Confidence: float64(confidence), Language: language}, nil
}

func recognitionConfigFor(input domain.SttInput, config domain.SttConfig) (*speechpb.RecognitionConfig, error) {
	encoding, err := getAudioEncoding(input.Encoding)
	if err != nil {
		return nil, err
	}
	language := config.Language
	if language == "" {
		language = defaultLang
	}
	channels := input.Channels
	if channels <= 0 {
		channels = 1
	}
	return &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		SampleRateHertz:            int32(input.SampleRate),
		AudioChannelCount:          int32(channels),
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}, nil
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case strings.ToUpper(entities.EncodingPCMS16LE), "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
