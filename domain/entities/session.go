package entities

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// EncodingPCMS16LE is the only sample encoding the core can frame
const EncodingPCMS16LE = "pcm_s16le"

var (
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
	ErrInvalidAudioFormat  = errors.New("invalid audio format")
)

// AudioFormat is the audio format negotiated during the satellite handshake
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	FrameMs    int    `json:"frame_ms"`
}

// FrameSize returns the byte size of one frame_ms long frame
func (f AudioFormat) FrameSize() (int, error) {
	if f.Encoding != EncodingPCMS16LE {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, f.Encoding)
	}
	if f.SampleRate <= 0 || f.Channels <= 0 || f.FrameMs <= 0 {
		return 0, fmt.Errorf("%w: rate=%d channels=%d frame_ms=%d",
			ErrInvalidAudioFormat, f.SampleRate, f.Channels, f.FrameMs)
	}
	size := f.SampleRate * 2 * f.Channels * f.FrameMs / 1000
	if size <= 0 {
		return 0, fmt.Errorf("%w: frame size rounds to zero", ErrInvalidAudioFormat)
	}
	return size, nil
}

// BytesPerSecond returns the pcm_s16le byte rate, or 0 when unknown
func (f AudioFormat) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * 2 * f.Channels
}

// SatelliteInfo is the identity a satellite declares in its hello
type SatelliteInfo struct {
	SatelliteID string `json:"satellite_id"`
	Area        string `json:"area"`
	Language    string `json:"language"`
}

// SatelliteSession is one utterance, from session.start to audio.end
type SatelliteSession struct {
	SessionID   string
	StartedAt   time.Time
	Satellite   SatelliteInfo
	AudioFormat AudioFormat

	mu    sync.Mutex
	audio []byte
}

// NewSatelliteSession creates an empty session
func NewSatelliteSession(sessionID string, startedAt time.Time, satellite SatelliteInfo, format AudioFormat) *SatelliteSession {
	return &SatelliteSession{
		SessionID:   sessionID,
		StartedAt:   startedAt,
		Satellite:   satellite,
		AudioFormat: format,
	}
}

// AppendAudio appends raw audio to the session buffer
func (s *SatelliteSession) AppendAudio(frame []byte) {
	s.mu.Lock()
	s.audio = append(s.audio, frame...)
	s.mu.Unlock()
}

// Audio returns a copy of the buffered audio
func (s *SatelliteSession) Audio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// AudioLen returns the number of buffered bytes
func (s *SatelliteSession) AudioLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio)
}

// AudioDuration estimates the buffered duration from the session format
func (s *SatelliteSession) AudioDuration() time.Duration {
	bps := s.AudioFormat.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(s.AudioLen()) * time.Second / time.Duration(bps)
}
