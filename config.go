package herbex

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/herbex/convergence"
	"github.com/brunobiangulo/herbex/llm"
	"github.com/brunobiangulo/herbex/output"
	"github.com/brunobiangulo/herbex/parser"
	"github.com/brunobiangulo/herbex/pipeline"
)

// Config holds all configuration for a herbex run.
type Config struct {
	// Input is a directory of documents or a single file.
	Input string `json:"input" yaml:"input"`
	// Extensions selects which files of an input directory are read.
	// Defaults to txt.
	Extensions []string `json:"extensions" yaml:"extensions"`

	// Vocabulary files, one label per line.
	EntityTypesPath   string `json:"entity_types" yaml:"entity_types"`
	RelationTypesPath string `json:"relation_types" yaml:"relation_types"`

	// Range restricts a directory input to [start, end) of its sorted files.
	Range RangeConfig `json:"range" yaml:"range"`

	// Validation enables the model self-correction stage before convergence.
	Validation bool `json:"validation" yaml:"validation"`
	// Mode is auto, normal or strict.
	Mode string `json:"mode" yaml:"mode"`
	// Passes repeats the batch; the convergence state carries over.
	Passes int `json:"passes" yaml:"passes"`

	Convergence ConvergenceConfig `json:"convergence" yaml:"convergence"`
	Chat        LLMConfig         `json:"chat" yaml:"chat"`
	Output      OutputConfig      `json:"output" yaml:"output"`

	// DBPath is the SQLite journal. Empty disables the journal.
	DBPath string `json:"db_path" yaml:"db_path"`
	// LogFile, if set, receives a copy of the log.
	LogFile string `json:"log_file" yaml:"log_file"`
}

// RangeConfig is an optional half-open index range.
type RangeConfig struct {
	Start *int `json:"start,omitempty" yaml:"start,omitempty"`
	End   *int `json:"end,omitempty" yaml:"end,omitempty"`
}

func (r RangeConfig) indexRange() parser.IndexRange {
	return parser.IndexRange{Start: r.Start, End: r.End}
}

// ConvergenceConfig sets when the vocabulary counts as stable.
type ConvergenceConfig struct {
	// Profile "small" selects ProfileSmall and ignores the fields below.
	Profile   string  `json:"profile" yaml:"profile"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Window    int     `json:"window" yaml:"window"`
}

// ProfileSmall suits short corpora: a stricter threshold over fewer rounds.
var ProfileSmall = ConvergenceConfig{Profile: "small", Threshold: 0.95, Window: 3}

// Resolve returns the effective window and threshold.
func (c ConvergenceConfig) Resolve() (window int, threshold float64) {
	if strings.EqualFold(c.Profile, ProfileSmall.Profile) {
		return ProfileSmall.Window, ProfileSmall.Threshold
	}
	return c.Window, c.Threshold
}

// LLMConfig configures the chat model endpoint.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // openai, zhipu, ollama, lmstudio, openrouter, groq, xai, gemini, custom
	Model       string  `json:"model" yaml:"model"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	APIKey      string  `json:"api_key" yaml:"api_key"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	// JSONMode asks the backend for a JSON object response.
	JSONMode bool `json:"json_mode" yaml:"json_mode"`
	// RequestsPerSecond throttles calls; zero disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

func (c LLMConfig) provider() llm.Config {
	return llm.Config{Provider: c.Provider, Model: c.Model, BaseURL: c.BaseURL, APIKey: c.APIKey}
}

// OutputConfig configures where results go.
type OutputConfig struct {
	Dir string `json:"dir" yaml:"dir"`
	// Summaries lists the summary formats: csv, xlsx.
	Summaries []string `json:"summaries" yaml:"summaries"`
}

// DefaultConfig returns the general-purpose configuration.
func DefaultConfig() Config {
	return Config{
		Input:             "Data_llm",
		Extensions:        []string{"txt"},
		EntityTypesPath:   "entity_types.txt",
		RelationTypesPath: "relation_types.txt",
		Validation:        true,
		Mode:              string(pipeline.ModeAuto),
		Passes:            1,
		Convergence: ConvergenceConfig{
			Threshold: convergence.DefaultThreshold,
			Window:    convergence.DefaultWindow,
		},
		Chat: LLMConfig{
			Provider:    "zhipu",
			Model:       "glm-4",
			Temperature: 0.3,
			MaxTokens:   4096,
		},
		Output: OutputConfig{
			Dir:       "output_results",
			Summaries: []string{output.FormatCSV, output.FormatXLSX},
		},
	}
}

// LoadConfig reads a YAML or JSON file (by extension) over DefaultConfig
// and applies environment overrides. An empty path yields the defaults
// with overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			err = json.Unmarshal(data, &cfg)
		default:
			err = yaml.Unmarshal(data, &cfg)
		}
		if err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// ApplyEnv overrides cfg from HERBEX_* variables and fills a missing API
// key from the provider's conventional variable.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("HERBEX_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("HERBEX_CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("HERBEX_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("HERBEX_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("HERBEX_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}

	if cfg.Chat.APIKey == "" {
		switch cfg.Chat.Provider {
		case "openai":
			cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			cfg.Chat.APIKey = os.Getenv("GROQ_API_KEY")
		case "gemini":
			cfg.Chat.APIKey = os.Getenv("GEMINI_API_KEY")
		case "zhipu":
			cfg.Chat.APIKey = os.Getenv("ZHIPU_API_KEY")
		}
	}
}

// Validate reports every problem with cfg at once.
func (c Config) Validate() error {
	return errors.Join(c.validateFields(), c.validateCredentials())
}

func (c Config) validateCredentials() error {
	if c.Chat.Provider != "" && llm.RequiresAPIKey(c.Chat.Provider) && c.Chat.APIKey == "" {
		return fmt.Errorf("%w: provider %s", ErrMissingCredentials, c.Chat.Provider)
	}
	return nil
}

func (c Config) validateFields() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if strings.TrimSpace(c.Input) == "" {
		bad("input path is empty")
	}
	if c.EntityTypesPath == "" || c.RelationTypesPath == "" {
		bad("vocabulary file paths must be set")
	}
	if _, err := pipeline.ParseMode(c.Mode); err != nil {
		bad("%v", err)
	}
	if c.Passes < 0 {
		bad("passes must not be negative, got %d", c.Passes)
	}
	if p := c.Convergence.Profile; p != "" && !strings.EqualFold(p, ProfileSmall.Profile) && !strings.EqualFold(p, "default") {
		bad("unknown convergence profile %q", p)
	}
	window, threshold := c.Convergence.Resolve()
	if threshold <= 0 || threshold > 1 {
		bad("convergence threshold must be in (0, 1], got %v", threshold)
	}
	if window < 1 {
		bad("convergence window must be at least 1, got %d", window)
	}
	for _, f := range c.Output.Summaries {
		switch strings.ToLower(f) {
		case output.FormatCSV, output.FormatXLSX:
		default:
			bad("unknown summary format %q", f)
		}
	}
	if c.Chat.RequestsPerSecond < 0 {
		bad("requests_per_second must not be negative")
	}
	if c.Chat.Provider == "" {
		bad("chat provider is empty")
	}
	return errors.Join(errs...)
}
