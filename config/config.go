package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig represents configuration for the Anthropic provider used
// by the state merger and the intent-classifier fallback.
type AnthropicConfig struct {
	APIKey          string `yaml:"api_key,omitempty"`          // Anthropic API key
	MergerModel     string `yaml:"merger_model,omitempty"`     // Model for state merging
	ClassifierModel string `yaml:"classifier_model,omitempty"` // Model for ambiguous-intent fallback
	MaxTokens       int    `yaml:"max_tokens,omitempty"`       // Max tokens per merge call
	FallbackEnabled bool   `yaml:"fallback_enabled,omitempty"` // Enable the generative intent fallback
}

// OllamaConfig represents configuration for the Ollama embedding provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Embedding model name
}

// OpenAIConfig represents configuration for the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // OpenAI API key
	Model  string `yaml:"model,omitempty"`   // Embedding model name
}

// RetrievalConfig tunes hybrid search.
type RetrievalConfig struct {
	Limit         int     `yaml:"limit,omitempty"`          // Default result limit
	MinSimilarity float64 `yaml:"min_similarity,omitempty"` // Vector-similarity floor
	VectorWeight  float64 `yaml:"vector_weight,omitempty"`  // Weight of the vector score
	KeywordWeight float64 `yaml:"keyword_weight,omitempty"` // Weight of the keyword score
}

// StateConfig tunes conversation-state lifecycle.
type StateConfig struct {
	TTLHours      int    `yaml:"ttl_hours,omitempty"`      // Default state TTL
	SweepSchedule string `yaml:"sweep_schedule,omitempty"` // Cron/@every schedule for cleanup
}

// Config is the full recall configuration.
type Config struct {
	DatabasePath string `yaml:"database_path,omitempty"`

	// Embedding provider selection: "ollama" or "openai".
	EmbeddingProvider string `yaml:"embedding_provider,omitempty"`

	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`

	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`
	State     StateConfig     `yaml:"state,omitempty"`

	// SystemRules are rendered verbatim near the top of every assembled
	// context.
	SystemRules []string `yaml:"system_rules,omitempty"`
}

// GetConfigPath returns the default config file path, expanding ~ to home
// directory. Can be overridden via RECALL_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("RECALL_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.recall/config.yaml"
	}
	return filepath.Join(homeDir, ".recall", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads configuration from path, merging it onto built-in defaults. A
// missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	defaults := Config{
		DatabasePath:      "~/.recall/recall.db",
		EmbeddingProvider: "ollama",
		Anthropic: AnthropicConfig{
			APIKey:          os.Getenv("ANTHROPIC_API_KEY"),
			MergerModel:     "claude-sonnet-4-5",
			ClassifierModel: "claude-haiku-4-5",
			MaxTokens:       1024,
		},
		Ollama: OllamaConfig{
			Host:  "http://localhost:11434",
			Model: "mxbai-embed-large",
		},
		OpenAI: OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		},
		Retrieval: RetrievalConfig{
			Limit:         10,
			MinSimilarity: 0.35,
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
		},
		State: StateConfig{
			TTLHours:      48,
			SweepSchedule: "@every 30m",
		},
	}

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		// File doesn't exist, return defaults
		return &defaults, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	var config Config
	if err := yaml.Unmarshal(configYAML, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := mergo.Merge(&defaults, config, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	defaults.DatabasePath = expandPath(defaults.DatabasePath)
	return &defaults, nil
}

// Save writes the configuration to the specified path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
