package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yikzhou/voicebridge/backend/internal/service/credential"
)

// Config aggregates every setting the backend reads.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Bridge   BridgeConfig
	Realtime RealtimeConfig
	Turn     TurnConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	turn, err := loadTurnConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Store:    loadStoreConfig(),
		Bridge:   loadBridgeConfig(),
		Realtime: realtime,
		Turn:     turn,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// StoreConfig locates the transcript files on disk.
type StoreConfig struct {
	Dir string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Dir: getEnvOrDefault("TRANSCRIPT_DIR", "transcripts"),
	}
}

// BridgeConfig names the tool-server binary the relay spawns per connection.
type BridgeConfig struct {
	Command string
}

func loadBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Command: getEnvOrDefault("TOOL_SERVER_BIN", "transcript-tools"),
	}
}

// RealtimeConfig carries the third-party realtime API settings used to mint
// ephemeral credentials.
type RealtimeConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Voice             string
	InputAudioFormat  string
	OutputAudioFormat string
	VADThreshold      float64
	VADSilenceMs      int
	TimeoutSeconds    int
}

// Enabled reports whether the required provider credentials are present.
func (c RealtimeConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// CredentialConfig converts to the credential service's config shape.
func (c RealtimeConfig) CredentialConfig() credential.Config {
	return credential.Config{
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		Voice:             c.Voice,
		InputAudioFormat:  c.InputAudioFormat,
		OutputAudioFormat: c.OutputAudioFormat,
		VADThreshold:      c.VADThreshold,
		VADSilenceMs:      c.VADSilenceMs,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	threshold, err := parseOptionalFloatEnv("REALTIME_VAD_THRESHOLD")
	if err != nil {
		return RealtimeConfig{}, err
	}
	vadThreshold := 0.5
	if threshold != nil {
		vadThreshold = *threshold
	}

	silence, err := parseOptionalIntEnv("REALTIME_VAD_SILENCE_MS")
	if err != nil {
		return RealtimeConfig{}, err
	}
	vadSilence := 500
	if silence != nil {
		vadSilence = *silence
	}

	timeout, err := parseOptionalIntEnv("REALTIME_TIMEOUT")
	if err != nil {
		return RealtimeConfig{}, err
	}
	timeoutSeconds := 15
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	return RealtimeConfig{
		APIKey:            strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:           getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		Model:             getEnvOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		Voice:             getEnvOrDefault("REALTIME_VOICE", "verse"),
		InputAudioFormat:  getEnvOrDefault("REALTIME_INPUT_FORMAT", "pcm16"),
		OutputAudioFormat: getEnvOrDefault("REALTIME_OUTPUT_FORMAT", "pcm16"),
		VADThreshold:      vadThreshold,
		VADSilenceMs:      vadSilence,
		TimeoutSeconds:    timeoutSeconds,
	}, nil
}

// TurnConfig tunes the turn coordinator. The silence timeout is the tunable
// quiet period before a partial transcript is treated as final.
type TurnConfig struct {
	SilenceTimeout time.Duration
	SampleRate     int
}

func loadTurnConfig() (TurnConfig, error) {
	silenceMs, err := parseOptionalIntEnv("TURN_SILENCE_TIMEOUT_MS")
	if err != nil {
		return TurnConfig{}, err
	}
	timeout := 900 * time.Millisecond
	if silenceMs != nil {
		if *silenceMs < 1 {
			return TurnConfig{}, fmt.Errorf("TURN_SILENCE_TIMEOUT_MS must be positive")
		}
		timeout = time.Duration(*silenceMs) * time.Millisecond
	}

	rate, err := parseOptionalIntEnv("AUDIO_SAMPLE_RATE")
	if err != nil {
		return TurnConfig{}, err
	}
	sampleRate := 24000
	if rate != nil {
		sampleRate = *rate
	}

	return TurnConfig{SilenceTimeout: timeout, SampleRate: sampleRate}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
