package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Datasets   DatasetsConfig   `yaml:"datasets"`
	Generation GenerationConfig `yaml:"generation"`
	Storage    StorageConfig    `yaml:"storage"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// TrackerConfig identifies an experiment-tracking session. Callers pass it
// explicitly; there is no process-global session.
type TrackerConfig struct {
	Project  string   `yaml:"project,omitempty"`
	Entity   string   `yaml:"entity,omitempty"`
	Name     string   `yaml:"name,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
	Notes    string   `yaml:"notes,omitempty"`
	Group    string   `yaml:"group,omitempty"`
	BaseURL  string   `yaml:"base_url,omitempty"`
	APIKey   string   `yaml:"api_key,omitempty"`
	CacheDir string   `yaml:"cache_dir,omitempty"`
}

type DatasetsConfig struct {
	MMLU   MMLUConfig   `yaml:"mmlu,omitempty"`
	MTOB   MTOBConfig   `yaml:"mtob,omitempty"`
	Qasper QasperConfig `yaml:"qasper,omitempty"`
}

type MMLUConfig struct {
	Path        string `yaml:"path,omitempty"`
	NumProblems int    `yaml:"num_problems,omitempty"`
	Seed        int64  `yaml:"seed,omitempty"`
}

type MTOBConfig struct {
	Dir    string `yaml:"dir,omitempty"`
	UseCoT bool   `yaml:"use_cot,omitempty"`
}

type QasperConfig struct {
	Path string `yaml:"path,omitempty"`
}

type GenerationConfig struct {
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with defaults and env overrides applied, for
// callers running without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}
	if strings.TrimSpace(cfg.LLM.DefaultProvider) == "" {
		cfg.LLM.DefaultProvider = "claude"
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		p := cfg.LLM.Providers["claude"]
		p.APIKey = v
		cfg.LLM.Providers["claude"] = p
	} else if v := strings.TrimSpace(os.Getenv("ANTHROPIC_AUTH_TOKEN")); v != "" {
		p := cfg.LLM.Providers["claude"]
		p.APIKey = v
		cfg.LLM.Providers["claude"] = p
	}

	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		p := cfg.LLM.Providers["openai"]
		p.APIKey = v
		cfg.LLM.Providers["openai"] = p
	}

	if strings.TrimSpace(cfg.Tracker.Project) == "" {
		cfg.Tracker.Project = "cartridges"
	}
	if v := strings.TrimSpace(os.Getenv("CARTRIDGES_TRACKER_API_KEY")); v != "" {
		cfg.Tracker.APIKey = v
	}
	if strings.TrimSpace(cfg.Tracker.CacheDir) == "" {
		if v := strings.TrimSpace(os.Getenv("WANDB_CACHE_DIR")); v != "" {
			cfg.Tracker.CacheDir = v
		} else {
			cfg.Tracker.CacheDir = "./artifacts"
		}
	}

	if cfg.Datasets.MMLU.NumProblems <= 0 {
		cfg.Datasets.MMLU.NumProblems = 200
	}
	if cfg.Datasets.MMLU.Seed == 0 {
		cfg.Datasets.MMLU.Seed = 47
	}

	if cfg.Generation.MaxTokens <= 0 {
		cfg.Generation.MaxTokens = 1024
	}
	if cfg.Generation.Concurrency <= 0 {
		cfg.Generation.Concurrency = 4
	}
}
