package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Request   RequestConfig   `yaml:"request"`
	Source    SourceConfig    `yaml:"source"`
	TTS       TTSConfig       `yaml:"tts"`
	Scene     SceneConfig     `yaml:"scene"`
	Player    PlayerConfig    `yaml:"player"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	TTS      LogSettings `yaml:"tts"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ArtifactsConfig holds settings for generated media artifacts.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// SourceConfig holds settings for the experiment backend connection.
type SourceConfig struct {
	BaseURL string `yaml:"base_url"`
}

// BackendTTSConfig holds settings for the backend /api/tts endpoint.
type BackendTTSConfig struct {
	// URL overrides source.base_url for speech synthesis when set.
	URL string `yaml:"url"`
}

// OpenAITTSConfig holds settings for direct OpenAI speech synthesis.
type OpenAITTSConfig struct {
	Key   string `yaml:"key"`
	Model string `yaml:"model"`
}

// TTSConfig holds Text-To-Speech settings.
type TTSConfig struct {
	Engine         string            `yaml:"engine"`
	FallbackEngine string            `yaml:"fallback_engine"` // used after a fatal synthesis error
	Voices         map[string]string `yaml:"voices"`          // speaker role -> voice ID
	Backend        BackendTTSConfig  `yaml:"backend"`
	OpenAI         OpenAITTSConfig   `yaml:"openai"`
}

// GenAISceneConfig holds settings for Gemini scene image generation.
type GenAISceneConfig struct {
	Key   string `yaml:"key"`
	Model string `yaml:"model"`
}

// SceneConfig holds settings for the scene image producer.
type SceneConfig struct {
	Renderer  string           `yaml:"renderer"` // "sprites", "genai"
	AssetsDir string           `yaml:"assets_dir"`
	GenAI     GenAISceneConfig `yaml:"genai"`
}

// PlayerConfig holds playback settings.
type PlayerConfig struct {
	ShockDwell Duration `yaml:"shock_dwell"`
	Volume     float64  `yaml:"volume"`
	Rate       float64  `yaml:"rate"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:1961",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			TTS: LogSettings{
				Path:  "./logs/tts.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/milgram.db",
		},
		Artifacts: ArtifactsConfig{
			Dir: "./data/artifacts",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(300 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(1 * time.Second),
				MaxDelay:  Duration(60 * time.Second),
			},
		},
		Source: SourceConfig{
			BaseURL: "http://localhost:8000",
		},
		TTS: TTSConfig{
			Engine:         "backend",
			FallbackEngine: "mock",
			Voices: map[string]string{
				"Professor":   "onyx",
				"Learner":     "echo",
				"Participant": "alloy",
			},
			OpenAI: OpenAITTSConfig{
				Model: "gpt-4o-mini-tts",
			},
		},
		Scene: SceneConfig{
			Renderer:  "sprites",
			AssetsDir: "./assets",
			GenAI: GenAISceneConfig{
				Model: "imagen-3.0-generate-002",
			},
		},
		Player: PlayerConfig{
			ShockDwell: Duration(1300 * time.Millisecond),
			Volume:     1.0,
			Rate:       2.0,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Load secrets from env if empty (fallback only, never saved back)
		if cfg.TTS.OpenAI.Key == "" {
			if key := os.Getenv("OPENAI_API_KEY"); key != "" {
				cfg.TTS.OpenAI.Key = key
			}
		}
		if cfg.Scene.GenAI.Key == "" {
			if key := os.Getenv("GEMINI_API_KEY"); key != "" {
				cfg.Scene.GenAI.Key = key
			}
		}

		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// If file does not exist, save defaults
	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Player.Rate < 0.5 || c.Player.Rate > 4 {
		return fmt.Errorf("invalid player.rate %.2f: must be in [0.5, 4]", c.Player.Rate)
	}
	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		return fmt.Errorf("invalid player.volume %.2f: must be in [0, 1]", c.Player.Volume)
	}
	switch c.TTS.Engine {
	case "backend", "openai", "windows-sapi", "mock":
	default:
		return fmt.Errorf("unknown tts.engine %q", c.TTS.Engine)
	}
	switch c.TTS.FallbackEngine {
	case "", "backend", "openai", "windows-sapi", "mock":
	default:
		return fmt.Errorf("unknown tts.fallback_engine %q", c.TTS.FallbackEngine)
	}
	switch c.Scene.Renderer {
	case "sprites", "genai", "mock":
	default:
		return fmt.Errorf("unknown scene.renderer %q", c.Scene.Renderer)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
