// Package config loads the engine's tunables from the environment, with
// an optional YAML fleet overlay listing the agents to
// register at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/agentctl/engine/internal/agents"
	"github.com/agentctl/engine/internal/executor"
	"github.com/agentctl/engine/internal/recovery"
	"github.com/agentctl/engine/internal/resources"
	"github.com/agentctl/engine/internal/review"
	"gopkg.in/yaml.v3"
)

// Config is every environment-tunable knob the engine reads at startup,
// named after the documented environment-variable table.
type Config struct {
	AutoRetryEnabled          bool
	AutoRetryMaxOllamaRetries int
	AutoRetryMaxRemoteRetries int
	AutoRetryMaxHaikuRetries  int
	AutoRetryValidationTimeoutMS time.Duration

	StuckTaskTimeoutMS        time.Duration
	StuckTaskCheckIntervalMS  time.Duration
	StuckTaskRecoveryEnabled  bool

	OllamaReviewInterval  int
	OpusReviewInterval    int
	ReviewQualityThreshold int

	OllamaComplexityThreshold float64

	ResourcePoolOllamaSlots int
	ResourcePoolClaudeSlots int
}

// Default returns the documented defaults, unaffected by the
// environment — callers normally use Load instead.
func Default() Config {
	return Config{
		AutoRetryEnabled:             true,
		AutoRetryMaxOllamaRetries:    1,
		AutoRetryMaxRemoteRetries:    1,
		AutoRetryMaxHaikuRetries:     1,
		AutoRetryValidationTimeoutMS: 15 * time.Second,
		StuckTaskTimeoutMS:           10 * time.Minute,
		StuckTaskCheckIntervalMS:     60 * time.Second,
		StuckTaskRecoveryEnabled:     true,
		OllamaReviewInterval:         5,
		OpusReviewInterval:           10,
		ReviewQualityThreshold:       6,
		OllamaComplexityThreshold:    7,
		ResourcePoolOllamaSlots:      1,
		ResourcePoolClaudeSlots:      3,
	}
}

// Load reads Config from the process environment, falling back to
// Default()'s value for anything unset or unparseable.
func Load() Config {
	cfg := Default()
	cfg.AutoRetryEnabled = envBool("AUTO_RETRY_ENABLED", cfg.AutoRetryEnabled)
	cfg.AutoRetryMaxOllamaRetries = envInt("AUTO_RETRY_MAX_OLLAMA_RETRIES", cfg.AutoRetryMaxOllamaRetries)
	cfg.AutoRetryMaxRemoteRetries = envInt("AUTO_RETRY_MAX_REMOTE_RETRIES", cfg.AutoRetryMaxRemoteRetries)
	cfg.AutoRetryMaxHaikuRetries = envInt("AUTO_RETRY_MAX_HAIKU_RETRIES", cfg.AutoRetryMaxHaikuRetries)
	cfg.AutoRetryValidationTimeoutMS = envMillis("AUTO_RETRY_VALIDATION_TIMEOUT_MS", cfg.AutoRetryValidationTimeoutMS)

	cfg.StuckTaskTimeoutMS = envMillis("STUCK_TASK_TIMEOUT_MS", cfg.StuckTaskTimeoutMS)
	cfg.StuckTaskCheckIntervalMS = envMillis("STUCK_TASK_CHECK_INTERVAL_MS", cfg.StuckTaskCheckIntervalMS)
	cfg.StuckTaskRecoveryEnabled = envBool("STUCK_TASK_RECOVERY_ENABLED", cfg.StuckTaskRecoveryEnabled)

	cfg.OllamaReviewInterval = envInt("OLLAMA_REVIEW_INTERVAL", cfg.OllamaReviewInterval)
	cfg.OpusReviewInterval = envInt("OPUS_REVIEW_INTERVAL", cfg.OpusReviewInterval)
	cfg.ReviewQualityThreshold = envInt("REVIEW_QUALITY_THRESHOLD", cfg.ReviewQualityThreshold)

	cfg.OllamaComplexityThreshold = envFloat("OLLAMA_COMPLEXITY_THRESHOLD", cfg.OllamaComplexityThreshold)

	cfg.ResourcePoolOllamaSlots = envInt("RESOURCE_POOL_OLLAMA_SLOTS", cfg.ResourcePoolOllamaSlots)
	cfg.ResourcePoolClaudeSlots = envInt("RESOURCE_POOL_CLAUDE_SLOTS", cfg.ResourcePoolClaudeSlots)

	return cfg
}

// Validate checks the invariants a loaded Config must satisfy before the
// engine wires its collaborators.
func (c Config) Validate() error {
	if c.AutoRetryMaxOllamaRetries < 0 || c.AutoRetryMaxRemoteRetries < 0 || c.AutoRetryMaxHaikuRetries < 0 {
		return fmt.Errorf("config: retry budgets must be non-negative")
	}
	if c.OllamaReviewInterval < 1 || c.OpusReviewInterval < 1 {
		return fmt.Errorf("config: review intervals must be at least 1")
	}
	if c.ReviewQualityThreshold < 0 || c.ReviewQualityThreshold > 10 {
		return fmt.Errorf("config: review quality threshold must be between 0 and 10")
	}
	if c.OllamaComplexityThreshold < 1 || c.OllamaComplexityThreshold > 10 {
		return fmt.Errorf("config: complexity threshold must be between 1 and 10")
	}
	if c.ResourcePoolOllamaSlots < 0 || c.ResourcePoolClaudeSlots < 0 {
		return fmt.Errorf("config: resource pool slots must be non-negative")
	}
	return nil
}

// ResourceMaxSlots adapts the loaded slot counts to resources.NewPool's
// shape.
func (c Config) ResourceMaxSlots() map[resources.Type]int {
	return map[resources.Type]int{
		resources.Ollama: c.ResourcePoolOllamaSlots,
		resources.Claude: c.ResourcePoolClaudeSlots,
	}
}

// ExecutorConfig adapts the loaded retry/recovery knobs to
// executor.Config, keeping its cooldown defaults.
func (c Config) ExecutorConfig() executor.Config {
	ec := executor.DefaultConfig()
	ec.Retry.Enabled = c.AutoRetryEnabled
	ec.Retry.MaxOllamaRetries = c.AutoRetryMaxOllamaRetries
	ec.Retry.MaxRemoteRetries = c.AutoRetryMaxRemoteRetries
	ec.Retry.MaxHaikuRetries = c.AutoRetryMaxHaikuRetries
	ec.Retry.ValidationTimeout = c.AutoRetryValidationTimeoutMS
	return ec
}

// ApplyRecovery copies the loaded stuck-task interval and timeout onto sw.
func (c Config) ApplyRecovery(sw *recovery.Sweeper) {
	sw.CheckInterval = c.StuckTaskCheckIntervalMS
	sw.Timeout = c.StuckTaskTimeoutMS
}

// ReviewConfig adapts the loaded sampling knobs to review.Config.
func (c Config) ReviewConfig() review.Config {
	return review.Config{
		OllamaReviewInterval: c.OllamaReviewInterval,
		OpusReviewInterval:   c.OpusReviewInterval,
		QualityThreshold:     float64(c.ReviewQualityThreshold),
	}
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envMillis(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

// FleetConfig is the optional YAML overlay naming the agents to register
// at startup.
type FleetConfig struct {
	Agents []FleetAgent `yaml:"agents"`
}

// FleetAgent names one agent to pre-register.
type FleetAgent struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Type           string `yaml:"type"` // coder, qa, cto
	PreferredModel string `yaml:"preferredModel,omitempty"`
}

// ToAgent builds an agents.Agent from a FleetAgent entry.
func (f FleetAgent) ToAgent() *agents.Agent {
	a := agents.New(f.ID, f.Name, agents.Type(f.Type))
	a.Config.PreferredModel = f.PreferredModel
	return a
}

// LoadFleetConfig reads the optional YAML fleet overlay from path. A
// missing file is not an error — the engine starts with an empty registry
// and agents register as they connect.
func LoadFleetConfig(path string) (*FleetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FleetConfig{}, nil
		}
		return nil, fmt.Errorf("config: reading fleet file %s: %w", path, err)
	}

	var fc FleetConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parsing fleet file %s: %w", path, err)
	}
	return &fc, nil
}
