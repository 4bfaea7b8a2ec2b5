package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// Chat archive backends
const (
	ArchiveNone   = "none"
	ArchiveMongo  = "mongo"
	ArchiveSQLite = "sqlite"
)

// Config holds the core server settings
type Config struct {
	Port                  string
	LogLevel              string
	AppEnv                string
	AuthSecret            string
	WorkerLivenessTimeout time.Duration
	WorkerPurgeAfter      time.Duration
	WorkerTimeout         time.Duration
	ChatExpiration        time.Duration
	MaxSessionAudio       time.Duration
	SpecialityConfig      string
	ChatArchive           string
	MongoURI              string
	MongoDatabase         string
	SQLitePath            string
}

// Load reads .env when present, then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and their defaults
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AppEnv:           getEnv("APP_ENV", "production"),
		AuthSecret:       os.Getenv("AUTH_SECRET"),
		SpecialityConfig: os.Getenv("SPECIALITY_CONFIG"),
		ChatArchive:      strings.ToLower(getEnv("CHAT_ARCHIVE", ArchiveNone)),
		MongoURI:         getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:    getEnv("MONGODB_DATABASE", "arunika"),
		SQLitePath:       getEnv("SQLITE_PATH", "arunika.db"),
	}

	var err error
	if cfg.WorkerLivenessTimeout, err = getDuration("WORKER_LIVENESS_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerPurgeAfter, err = getDuration("WORKER_PURGE_AFTER", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WorkerTimeout, err = getDuration("WORKER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.ChatExpiration, err = getDuration("CHAT_EXPIRATION", 5*time.Minute); err != nil {
		return nil, err
	}

	seconds := 30
	if v := os.Getenv("MAX_SESSION_AUDIO_SECONDS"); v != "" {
		if seconds, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSION_AUDIO_SECONDS %q: %w", v, err)
		}
	}
	cfg.MaxSessionAudio = time.Duration(seconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"WORKER_LIVENESS_TIMEOUT", c.WorkerLivenessTimeout},
		{"WORKER_PURGE_AFTER", c.WorkerPurgeAfter},
		{"WORKER_TIMEOUT", c.WorkerTimeout},
		{"CHAT_EXPIRATION", c.ChatExpiration},
		{"MAX_SESSION_AUDIO_SECONDS", c.MaxSessionAudio},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	switch c.ChatArchive {
	case ArchiveNone, ArchiveMongo, ArchiveSQLite:
	default:
		return fmt.Errorf("unknown CHAT_ARCHIVE %q", c.ChatArchive)
	}
	if c.Port == "" {
		return errors.New("PORT must not be empty")
	}
	return nil
}

// AuthEnabled reports whether tokens are required
func (c *Config) AuthEnabled() bool {
	return c.AuthSecret != ""
}

// Development reports whether the server runs with development logging
func (c *Config) Development() bool {
	return c.LogLevel == "debug" || c.AppEnv == "development"
}

// LoadSpecialityProfiles reads the profile file at path over the defaults.
// An empty path yields the defaults.
//
//	general:
//	  system_prompt: You are a helpful assistant.
//	  model: gemini-2.5-flash
//	coding:
//	  max_tokens: 8192
func LoadSpecialityProfiles(path string) (entities.SpecialityProfiles, error) {
	profiles := entities.DefaultSpecialityProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read speciality config: %w", err)
	}
	return ParseSpecialityProfiles(data, profiles)
}

// ParseSpecialityProfiles merges the YAML document data into base
func ParseSpecialityProfiles(data []byte, base entities.SpecialityProfiles) (entities.SpecialityProfiles, error) {
	var raw map[string]entities.SpecialityProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse speciality config: %w", err)
	}

	for name, profile := range raw {
		speciality, err := entities.ParseSpeciality(name)
		if err != nil || len(speciality.Singles()) != 1 {
			return nil, fmt.Errorf("speciality config: %q is not a single speciality", name)
		}

		merged := base[speciality]
		if profile.SystemPrompt != "" {
			merged.SystemPrompt = profile.SystemPrompt
		}
		if profile.Model != "" {
			merged.Model = profile.Model
		}
		if profile.MaxTokens > 0 {
			merged.MaxTokens = profile.MaxTokens
		}
		if profile.Temperature > 0 {
			merged.Temperature = profile.Temperature
		}
		base[speciality] = merged
	}
	return base, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
