// Package config loads and validates the agent's on-disk configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultHomeDirName is the directory under $HOME used when no explicit
// config root is supplied.
const DefaultHomeDirName = ".cogent"

// Config is the root on-disk configuration (config.json / config.yaml).
type Config struct {
	// Version is the config schema version. See CurrentVersion.
	Version int `yaml:"version"`

	// LLM configures providers, the default provider/model, and the fallback chain.
	LLM LLMConfig `yaml:"llm"`

	// Loop configures the agent loop's iteration and tool-call budgets.
	Loop LoopConfig `yaml:"loop"`

	// Approval configures the confirmation gate's allow/deny policy.
	Approval ApprovalConfig `yaml:"approval"`

	// MCP lists external tool-servers to connect to at startup.
	MCP MCPConfig `yaml:"mcp"`

	// WebSearch configures the web_search tool's backend and caching.
	WebSearch WebSearchConfig `yaml:"web_search"`

	// Context configures token budgeting, trimming, and pruning.
	Context ContextConfig `yaml:"context"`

	// Session configures session-store retention.
	Session SessionConfig `yaml:"session"`

	// Memory configures the fact-memory store's decay and scoring.
	Memory MemoryConfig `yaml:"memory"`

	// Identity points at an optional persona file (see agent.Identity).
	Identity IdentityConfig `yaml:"identity"`

	// Debug turns on verbose slog output.
	Debug bool `yaml:"debug"`
}

// LoopConfig mirrors agent.LoopConfig at the config layer so it can be
// loaded from disk without the config package depending on internal/agent.
type LoopConfig struct {
	MaxIterations      int           `yaml:"max_iterations"`
	MaxToolCalls       int           `yaml:"max_tool_calls"`
	MaxWallTime        time.Duration `yaml:"max_wall_time"`
	AutoApprove        bool          `yaml:"auto_approve"`
	ProactivePrefetch  bool          `yaml:"proactive_prefetch"`
}

// ApprovalConfig configures the Confirmation Gate's declarative policy.
type ApprovalConfig struct {
	Allowlist       []string `yaml:"allowlist"`
	Denylist        []string `yaml:"denylist"`
	RequireApproval []string `yaml:"require_approval"`
	SafeBins        []string `yaml:"safe_bins"`
}

// MCPConfig holds the set of MCP servers to connect at startup.
type MCPConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Servers []MCPServerConfig     `yaml:"servers"`
}

// MCPServerConfig describes one external MCP tool-server.
type MCPServerConfig struct {
	ID        string            `yaml:"id"`
	Transport string            `yaml:"transport"` // "stdio" | "sse"
	AutoStart bool              `yaml:"auto_start"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// WebSearchConfig configures the web_search tool's backend. Enabled
// defaults to false: the reference tool set's web_fetch covers single-URL
// retrieval without requiring any external search API, and search backends
// need either a self-hosted SearXNG instance or a paid API key.
type WebSearchConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Backend        string `yaml:"backend"` // "searxng" | "duckduckgo" | "brave"
	SearXNGURL     string `yaml:"searxng_url,omitempty"`
	BraveAPIKey    string `yaml:"brave_api_key,omitempty"`
	ExtractContent bool   `yaml:"extract_content"`
}

// ContextConfig configures the Context Manager's budgets.
type ContextConfig struct {
	Pruning ContextPruningConfig `yaml:"pruning"`

	// SystemBudgetTokens caps the total system-prompt budget (§4.3).
	SystemBudgetTokens int `yaml:"system_budget_tokens"`
}

// ContextPruningConfig is the on-disk shape consumed by
// EffectiveContextPruningSettings.
type ContextPruningConfig struct {
	Mode                 string   `yaml:"mode"`
	TTL                  *time.Duration `yaml:"ttl,omitempty"`
	KeepLastAssistants   *int     `yaml:"keep_last_assistants,omitempty"`
	SoftTrimRatio        *float64 `yaml:"soft_trim_ratio,omitempty"`
	HardClearRatio       *float64 `yaml:"hard_clear_ratio,omitempty"`
	MinPrunableToolChars *int     `yaml:"min_prunable_tool_chars,omitempty"`
	Tools                struct {
		Allow []string `yaml:"allow"`
		Deny  []string `yaml:"deny"`
	} `yaml:"tools"`
	SoftTrim struct {
		MaxChars  *int `yaml:"max_chars,omitempty"`
		HeadChars *int `yaml:"head_chars,omitempty"`
		TailChars *int `yaml:"tail_chars,omitempty"`
	} `yaml:"soft_trim"`
	HardClear struct {
		Enabled     *bool  `yaml:"enabled,omitempty"`
		Placeholder string `yaml:"placeholder,omitempty"`
	} `yaml:"hard_clear"`
}

// SessionConfig configures the Session Store.
type SessionConfig struct {
	// MaxSessions bounds retention; oldest sessions are dropped once exceeded.
	// 0 means unlimited (non-normative safety net per §9 Open Question).
	MaxSessions int `yaml:"max_sessions"`
}

// MemoryConfig configures the Memory Store's decay and scoring knobs.
type MemoryConfig struct {
	// DecayFactor multiplies confidence for memories not selected by getForPrompt, per category.
	DecayFactor map[string]float64 `yaml:"decay_factor"`

	// PruneBelow removes memories whose confidence falls below this threshold.
	PruneBelow float64 `yaml:"prune_below"`

	// AccessBoost is the fixed confidence delta applied by access().
	AccessBoost float64 `yaml:"access_boost"`

	// PromptTokenCap bounds how many tokens getForPrompt may return.
	PromptTokenCap int `yaml:"prompt_token_cap"`
}

// IdentityConfig points at an optional IDENTITY.md-style persona file.
type IdentityConfig struct {
	Path string `yaml:"path"`
}

// Dir returns the config root directory, defaulting to $HOME/.cogent.
func Dir() string {
	if v := os.Getenv("COGENT_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultHomeDirName
	}
	return filepath.Join(home, DefaultHomeDirName)
}

// Path returns the default config file path within Dir().
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Default returns a Config populated with the system's defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
		},
		Loop: LoopConfig{
			MaxIterations: 10,
			MaxToolCalls:  0,
			MaxWallTime:   0,
		},
		Context: ContextConfig{
			SystemBudgetTokens: 500,
		},
		Session: SessionConfig{
			MaxSessions: 200,
		},
		Memory: MemoryConfig{
			DecayFactor: map[string]float64{
				"fact":         0.98,
				"preference":   0.99,
				"routine":      0.97,
				"relationship": 0.99,
			},
			PruneBelow:     0.05,
			AccessBoost:    0.05,
			PromptTokenCap: 200,
		},
	}
}

// Load reads, merges ($include), and decodes the config file at path.
// If path does not exist, Default() is returned without error.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = Path()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Version > CurrentVersion {
		return nil, &VersionError{Version: cfg.Version, Current: CurrentVersion, Reason: "newer than this build"}
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := Default()
	if cfg.Loop.MaxIterations <= 0 {
		cfg.Loop.MaxIterations = defaults.Loop.MaxIterations
	}
	if cfg.Context.SystemBudgetTokens <= 0 {
		cfg.Context.SystemBudgetTokens = defaults.Context.SystemBudgetTokens
	}
	if cfg.Session.MaxSessions <= 0 {
		cfg.Session.MaxSessions = defaults.Session.MaxSessions
	}
	if cfg.Memory.DecayFactor == nil {
		cfg.Memory.DecayFactor = defaults.Memory.DecayFactor
	}
	if cfg.Memory.PromptTokenCap <= 0 {
		cfg.Memory.PromptTokenCap = defaults.Memory.PromptTokenCap
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = defaults.LLM.DefaultProvider
	}
}

// applyEnvOverrides applies the env vars named in SPEC_FULL.md §6: provider
// API keys, default model override, debug flag, max-iterations override.
// Env values take precedence over the config file.
func applyEnvOverrides(cfg *Config) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	setAPIKey := func(provider, env string) {
		key := os.Getenv(env)
		if key == "" {
			return
		}
		p := cfg.LLM.Providers[provider]
		p.APIKey = key
		cfg.LLM.Providers[provider] = p
	}
	setAPIKey("openrouter", "OPENROUTER_API_KEY")
	setAPIKey("openai", "OPENAI_API_KEY")
	setAPIKey("anthropic", "ANTHROPIC_API_KEY")

	if model := os.Getenv("COGENT_DEFAULT_MODEL"); model != "" {
		p := cfg.LLM.Providers[cfg.LLM.DefaultProvider]
		p.DefaultModel = model
		cfg.LLM.Providers[cfg.LLM.DefaultProvider] = p
	}

	if debug := os.Getenv("COGENT_DEBUG"); debug != "" {
		if v, err := strconv.ParseBool(debug); err == nil {
			cfg.Debug = v
		}
	}

	if maxIter := os.Getenv("COGENT_MAX_ITERATIONS"); maxIter != "" {
		if v, err := strconv.Atoi(maxIter); err == nil && v > 0 {
			cfg.Loop.MaxIterations = v
		}
	}
}
