// SPDX-License-Identifier: MIT
package config

import "time"

// Capture modes accepted by audio.capture_mode.
const (
	CaptureModePortAudio = "portaudio" // Live PortAudio input device.
	CaptureModeCommand   = "command"   // External recorder writing raw s16le to stdout.
	CaptureModeFile      = "file"      // Looping WAV file (file-fallback capture).
)

// Core configuration constants that define the boundaries and defaults
// for the processing pipeline.
const (
	DefaultSampleRate      = 44100
	DefaultFrameSize       = 2048
	DefaultChannels        = 1
	DefaultDeviceID        = MinDeviceID
	DefaultSmoothingWindow = 5
	DefaultMinConfidence   = 0.6
	DefaultMinMagnitude    = 5.0
	DefaultLowThresholdHz  = 400.0
	DefaultHighThresholdHz = 1000.0
	DefaultRestartDelay    = time.Second
	DefaultSSERetry        = 3 * time.Second
	DefaultListenAddr      = ":8080"
	DefaultLogFile         = "messages.log"
	DefaultMaxInFlight     = 64
	DefaultSinkTimeout     = 5 * time.Second
	DefaultGenerationModel = "gpt-4o-mini"

	// Hardware and processing limits
	MinDeviceID   = -1 // -1 represents the system default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MinFrameSize  = 64
	MaxFrameSize  = 16384
)

// Config is the complete runtime configuration, loaded from YAML with
// environment overrides applied on top.
type Config struct {
	Debug       bool            `yaml:"debug"`     // Enable debug logging.
	LogLevel    string          `yaml:"log_level"` // "debug", "info", "warn" or "error".
	Audio       AudioConfig     `yaml:"audio"`
	Analysis    AnalysisConfig  `yaml:"analysis"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Sinks       SinksConfig     `yaml:"sinks"`
	Recording   RecordingConfig `yaml:"recording"`
	Server      ServerConfig    `yaml:"server"`
	Credentials Credentials     `yaml:"credentials"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	SampleRate     float64       `yaml:"sample_rate"`     // Sample rate in Hz.
	FrameSize      int           `yaml:"frame_size"`      // Samples per analysis frame, power of two.
	InputDevice    int           `yaml:"input_device"`    // PortAudio device index (-1 for default).
	Channels       int           `yaml:"channels"`        // Captured channels; only the first is analyzed.
	LowLatency     bool          `yaml:"low_latency"`     // Request the device's low input latency.
	CaptureMode    string        `yaml:"capture_mode"`    // portaudio, command or file.
	CaptureCommand []string      `yaml:"capture_command"` // argv for command mode.
	FallbackFile   string        `yaml:"fallback_file"`   // WAV file for file mode.
	Normalize      bool          `yaml:"normalize"`       // Scale samples to [-1, 1).
	RestartDelay   time.Duration `yaml:"restart_delay"`   // Fixed delay before restarting a terminated capture.
}

// AnalysisConfig holds classifier and smoothing settings.
type AnalysisConfig struct {
	SmoothingWindow int             `yaml:"smoothing_window"`  // Number of spectra averaged (K).
	MinConfidence   float64         `yaml:"min_confidence"`    // Ratio to the peak a bin needs to contribute a symbol.
	MinMagnitude    float64         `yaml:"min_magnitude"`     // Peak floor below which the answer is MAYBE.
	LowThresholdHz  float64         `yaml:"low_threshold_hz"`  // Below this the answer is NO.
	HighThresholdHz float64         `yaml:"high_threshold_hz"` // Above this the answer is YES.
	Signature       SignatureConfig `yaml:"signature"`
	ColorBands      []ColorBand     `yaml:"color_bands"`   // Ordered by ascending upper bound.
	DefaultColor    string          `yaml:"default_color"` // Label above the last band.
	NeutralColor    string          `yaml:"neutral_color"` // Label when no frequency is defined.
	SymbolsEnabled  bool            `yaml:"symbols_enabled"`
	SymbolBands     []SymbolBand    `yaml:"symbol_bands"`
	DictionaryFile  string          `yaml:"dictionary_file"` // YAML map of signature key to phrase.
}

// SignatureConfig bounds the two counting windows of the signature key.
type SignatureConfig struct {
	LowMinHz       float64 `yaml:"low_min_hz"`
	LowMaxHz       float64 `yaml:"low_max_hz"`
	HighMinHz      float64 `yaml:"high_min_hz"`
	HighMaxHz      float64 `yaml:"high_max_hz"`
	MagnitudeFloor float64 `yaml:"magnitude_floor"`
}

// ColorBand labels frequencies strictly below BelowHz.
type ColorBand struct {
	Label   string  `yaml:"label"`
	BelowHz float64 `yaml:"below_hz"`
}

// SymbolBand maps the half-open range [LowHz, HighHz) to a symbol.
type SymbolBand struct {
	Symbol string  `yaml:"symbol"`
	LowHz  float64 `yaml:"low_hz"`
	HighHz float64 `yaml:"high_hz"`
}

// PipelineConfig tunes the dispatch loop.
type PipelineConfig struct {
	MinDispatchInterval time.Duration `yaml:"min_dispatch_interval"` // 0 dispatches every message.
}

// SinksConfig enables and configures the delivery targets.
type SinksConfig struct {
	LogFile     string          `yaml:"log_file"`
	MaxInFlight int             `yaml:"max_in_flight"` // Bound on concurrent detached deliveries.
	Webhook     WebhookConfig   `yaml:"webhook"`
	Assistant   AssistantConfig `yaml:"assistant"`
	TTS         CommandConfig   `yaml:"tts"`
	Haptic      CommandConfig   `yaml:"haptic"`
	UDP         UDPConfig       `yaml:"udp"`
}

// WebhookConfig configures the outbound webhook.
type WebhookConfig struct {
	Enabled           bool          `yaml:"enabled"`
	URL               string        `yaml:"url"`
	EncryptionEnabled bool          `yaml:"encryption_enabled"`
	EncryptionKey     string        `yaml:"encryption_key"` // 32 bytes, hex encoded.
	Timeout           time.Duration `yaml:"timeout"`
}

// AssistantConfig configures the voice-assistant notification sink.
type AssistantConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	TokenURL string        `yaml:"token_url"`
	Scopes   []string      `yaml:"scopes"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CommandConfig configures an actuator command. Arguments may contain the
// placeholders {text}, {answer} and {color}.
type CommandConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command []string `yaml:"command"`
}

// UDPConfig configures the UDP datagram sink.
type UDPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	TargetAddress string `yaml:"target_address"` // host:port
}

// RecordingConfig controls the optional WAV tap of the raw capture stream.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	ListenAddr string        `yaml:"listen_addr"`
	SSERetry   time.Duration `yaml:"sse_retry"` // Reconnect hint sent once per live-events stream.
}

// Credentials are required at startup. They are usually supplied through
// the environment or a .env file rather than the YAML file.
type Credentials struct {
	AssistantClientID     string `yaml:"assistant_client_id"`
	AssistantClientSecret string `yaml:"assistant_client_secret"`
	GenerationAPIKey      string `yaml:"generation_api_key"`
	GenerationModel       string `yaml:"generation_model"`
}

// Default returns the built-in configuration used as the base before the
// file and environment are applied.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate:   DefaultSampleRate,
			FrameSize:    DefaultFrameSize,
			InputDevice:  DefaultDeviceID,
			Channels:     DefaultChannels,
			CaptureMode:  CaptureModePortAudio,
			Normalize:    true,
			RestartDelay: DefaultRestartDelay,
		},
		Analysis: AnalysisConfig{
			SmoothingWindow: DefaultSmoothingWindow,
			MinConfidence:   DefaultMinConfidence,
			MinMagnitude:    DefaultMinMagnitude,
			LowThresholdHz:  DefaultLowThresholdHz,
			HighThresholdHz: DefaultHighThresholdHz,
			Signature: SignatureConfig{
				LowMinHz:       400,
				LowMaxHz:       850,
				HighMinHz:      1200,
				HighMaxHz:      2000,
				MagnitudeFloor: 2,
			},
			ColorBands: []ColorBand{
				{Label: "Red", BelowHz: 300},
				{Label: "Green", BelowHz: 700},
				{Label: "Blue", BelowHz: 1500},
			},
			DefaultColor: "Violet",
			NeutralColor: "Neutral",
			SymbolBands: []SymbolBand{
				{Symbol: "A", LowHz: 200, HighHz: 400},
				{Symbol: "B", LowHz: 400, HighHz: 850},
				{Symbol: "C", LowHz: 850, HighHz: 1200},
				{Symbol: "D", LowHz: 1200, HighHz: 2000},
				{Symbol: "E", LowHz: 2000, HighHz: 4000},
			},
		},
		Sinks: SinksConfig{
			LogFile:     DefaultLogFile,
			MaxInFlight: DefaultMaxInFlight,
			Webhook:     WebhookConfig{Timeout: DefaultSinkTimeout},
			Assistant:   AssistantConfig{Timeout: DefaultSinkTimeout},
			TTS:         CommandConfig{Command: []string{"espeak", "{text}"}},
			Haptic:      CommandConfig{Command: []string{"haptic-pulse", "{answer}"}},
			UDP:         UDPConfig{TargetAddress: "127.0.0.1:9090"},
		},
		Recording: RecordingConfig{OutputDir: "./recordings"},
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			SSERetry:   DefaultSSERetry,
		},
		Credentials: Credentials{GenerationModel: DefaultGenerationModel},
	}
}
