package entities

import (
	"fmt"
	"strings"
	"time"
)

// WorkerType identifies the pipeline stage a worker serves
type WorkerType string

const (
	WorkerTypeSTT    WorkerType = "stt"
	WorkerTypeRouter WorkerType = "router"
	WorkerTypeLLM    WorkerType = "llm"
	WorkerTypeTTS    WorkerType = "tts"
)

// WorkerTypes lists every known worker type in pipeline order
var WorkerTypes = []WorkerType{WorkerTypeSTT, WorkerTypeRouter, WorkerTypeLLM, WorkerTypeTTS}

// ParseWorkerType parses a worker type name, case-insensitive
func ParseWorkerType(s string) (WorkerType, error) {
	switch WorkerType(strings.ToLower(strings.TrimSpace(s))) {
	case WorkerTypeSTT:
		return WorkerTypeSTT, nil
	case WorkerTypeRouter:
		return WorkerTypeRouter, nil
	case WorkerTypeLLM:
		return WorkerTypeLLM, nil
	case WorkerTypeTTS:
		return WorkerTypeTTS, nil
	}
	return "", fmt.Errorf("unknown worker type %q", s)
}

// ParseWorkerSpec parses the "type[:speciality]" registration form.
// A missing speciality yields SpecialityNone.
func ParseWorkerSpec(s string) (WorkerType, Speciality, error) {
	typePart, specPart, hasSpec := strings.Cut(s, ":")
	workerType, err := ParseWorkerType(typePart)
	if err != nil {
		return "", SpecialityNone, err
	}
	if !hasSpec {
		return workerType, SpecialityNone, nil
	}
	speciality, err := ParseSpecialities(specPart)
	if err != nil {
		return "", SpecialityNone, err
	}
	return workerType, speciality, nil
}

func (t WorkerType) String() string {
	return string(t)
}

// WorkerCapabilities is what a worker declares at registration
type WorkerCapabilities struct {
	Specialities      Speciality `json:"specialities"`
	SupportsStreaming bool       `json:"supports_streaming"`
	SupportsTools     bool       `json:"supports_tools"`
	Models            []string   `json:"models,omitempty"`
}

// WorkerDescriptor describes one registered remote worker
type WorkerDescriptor struct {
	WorkerID     string             `json:"worker_id"`
	Type         WorkerType         `json:"type"`
	Endpoint     string             `json:"endpoint"`
	Capabilities WorkerCapabilities `json:"capabilities"`
	LastSeen     time.Time          `json:"last_seen"`
}

// Age returns how long ago the worker was last seen
func (w WorkerDescriptor) Age(now time.Time) time.Duration {
	return now.Sub(w.LastSeen)
}

// Clone returns a copy that shares no slices with w
func (w WorkerDescriptor) Clone() WorkerDescriptor {
	if w.Capabilities.Models != nil {
		models := make([]string, len(w.Capabilities.Models))
		copy(models, w.Capabilities.Models)
		w.Capabilities.Models = models
	}
	return w
}
