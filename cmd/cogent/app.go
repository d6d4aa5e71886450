package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cogent-run/cogent/internal/agent"
	"github.com/cogent-run/cogent/internal/agent/providers"
	"github.com/cogent-run/cogent/internal/agent/routing"
	"github.com/cogent-run/cogent/internal/config"
	"github.com/cogent-run/cogent/internal/jobs"
	"github.com/cogent-run/cogent/internal/mcp"
	"github.com/cogent-run/cogent/internal/memory"
	"github.com/cogent-run/cogent/internal/sessions"
	"github.com/cogent-run/cogent/internal/tools/exec"
	"github.com/cogent-run/cogent/internal/tools/facts"
	"github.com/cogent-run/cogent/internal/tools/files"
	"github.com/cogent-run/cogent/internal/tools/websearch"
)

const baseSystemPrompt = `You are Cogent, a terminal AI agent. You can read, write, and edit files,
run shell commands, and fetch web pages, always asking for confirmation before
anything that changes the user's system or leaves the workspace. Be direct and
concise; prefer taking action over describing what you would do.`

// app bundles the components wired together at startup: the agent runtime,
// its backing session/memory stores, and the approval checker the CLI
// surfaces through "cogent approve".
type app struct {
	cfg      *config.Config
	runtime  *agent.AgenticRuntime
	sessions *sessions.FileStore
	memory   *memory.Store
	approval *agent.ApprovalChecker
	mcp      *mcp.Manager
}

func resolveConfigPath(explicit string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	return config.Path()
}

func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, wrapConfigError(fmt.Errorf("load config: %w", err))
	}
	if cfg.Debug {
		logLevel.Set(slog.LevelDebug)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, wrapConfigError(err)
	}

	loopCfg := buildLoopConfig(cfg)

	sessionDir := filepath.Join(config.Dir(), "sessions")
	store, err := sessions.NewFileStore(sessionDir, cfg.Session.MaxSessions)
	if err != nil {
		return nil, wrapConfigError(fmt.Errorf("open session store: %w", err))
	}

	memPath := filepath.Join(config.Dir(), "memories.json")
	memStore, err := memory.NewStore(memPath, memory.Options{
		DecayFactor:    memory.DecayFactors(cfg.Memory.DecayFactor),
		PruneBelow:     cfg.Memory.PruneBelow,
		AccessBoost:    cfg.Memory.AccessBoost,
		PromptTokenCap: cfg.Memory.PromptTokenCap,
	})
	if err != nil {
		return nil, wrapConfigError(fmt.Errorf("open memory store: %w", err))
	}

	runtime := agent.NewAgenticRuntime(provider, store, loopCfg)

	workspace, err := os.Getwd()
	if err != nil {
		workspace = "."
	}
	registerReferenceTools(runtime, workspace, cfg)

	mcpManager := buildMCPManager(cfg)
	if mcpManager != nil {
		if err := mcpManager.Start(context.Background()); err != nil {
			slog.Warn("mcp: failed to start one or more servers", "error", err)
		}
		mcp.RegisterTools(runtime, mcpManager)
	}

	if defaultModel := providerDefaultModel(cfg); defaultModel != "" {
		runtime.SetDefaultModel(defaultModel)
	}
	runtime.SetSystemPrompt(buildSystemPrompt(workspace, memStore, nil))

	return &app{
		cfg:      cfg,
		runtime:  runtime,
		sessions: store,
		memory:   memStore,
		approval: loopCfg.ApprovalChecker,
		mcp:      mcpManager,
	}, nil
}

// buildMCPManager translates the on-disk MCP server list into the mcp
// package's manager config. Returns nil when MCP is disabled or no servers
// are configured, so loadApp can skip Start/RegisterTools entirely.
func buildMCPManager(cfg *config.Config) *mcp.Manager {
	if !cfg.MCP.Enabled || len(cfg.MCP.Servers) == 0 {
		return nil
	}

	servers := make([]*mcp.ServerConfig, 0, len(cfg.MCP.Servers))
	for _, s := range cfg.MCP.Servers {
		transport := mcp.TransportStdio
		if strings.EqualFold(s.Transport, "sse") || strings.EqualFold(s.Transport, "http") {
			transport = mcp.TransportHTTP
		}
		servers = append(servers, &mcp.ServerConfig{
			ID:        s.ID,
			Name:      s.ID,
			Transport: transport,
			Command:   s.Command,
			Args:      s.Args,
			Env:       s.Env,
			URL:       s.URL,
			Headers:   s.Headers,
			AutoStart: s.AutoStart,
		})
	}

	return mcp.NewManager(&mcp.Config{Enabled: true, Servers: servers}, slog.Default())
}

// registerReferenceTools wires the reference tools named in SPEC_FULL.md:
// list_directory and read_file run without confirmation, write_file/edit/
// apply_patch/run_shell are gated by the approval policy in buildLoopConfig,
// and the remaining tools (web_fetch among them) fall through to its
// allow-by-default decision. process and facts_extract are ambient
// companions to run_shell and the memory store respectively. web_search is
// registered only when the config enables it (web_search.enabled), since it
// needs either a SearXNG URL or a Brave API key to be useful.
func registerReferenceTools(runtime *agent.AgenticRuntime, workspace string, cfg *config.Config) {
	filesCfg := files.Config{Workspace: workspace}
	runtime.RegisterTool(files.NewListTool(filesCfg))
	runtime.RegisterTool(files.NewReadTool(filesCfg))
	runtime.RegisterTool(files.NewWriteTool(filesCfg))
	runtime.RegisterTool(files.NewEditTool(filesCfg))
	runtime.RegisterTool(files.NewApplyPatchTool(filesCfg))

	execManager := exec.NewManager(workspace)
	runtime.ConfigureTool("run_shell", &agent.ToolConfig{Timeout: 30 * time.Second})
	runtime.RegisterTool(exec.NewExecTool("run_shell", execManager))
	runtime.RegisterTool(exec.NewProcessTool(execManager))

	runtime.RegisterTool(websearch.NewWebFetchTool(&websearch.FetchConfig{MaxChars: 20000}))
	runtime.RegisterTool(facts.NewExtractTool(10))

	if cfg.WebSearch.Enabled {
		runtime.RegisterTool(websearch.NewWebSearchTool(&websearch.Config{
			SearXNGURL:     cfg.WebSearch.SearXNGURL,
			BraveAPIKey:    cfg.WebSearch.BraveAPIKey,
			DefaultBackend: websearch.SearchBackend(cfg.WebSearch.Backend),
			ExtractContent: cfg.WebSearch.ExtractContent,
		}))
	}
}

// buildLoopConfig maps the on-disk LoopConfig/ApprovalConfig into the agent
// package's runtime types, wiring an in-memory approval store. The store
// lives only as long as the process that built it: a separate "cogent
// approve" invocation gets its own empty store and does not see requests
// created by another run.
func buildLoopConfig(cfg *config.Config) *agent.LoopConfig {
	loopCfg := agent.DefaultLoopConfig()
	if cfg.Loop.MaxIterations > 0 {
		loopCfg.MaxIterations = cfg.Loop.MaxIterations
	}
	if cfg.Loop.MaxToolCalls > 0 {
		loopCfg.MaxToolCalls = cfg.Loop.MaxToolCalls
	}
	loopCfg.MaxWallTime = cfg.Loop.MaxWallTime

	policy := &agent.ApprovalPolicy{
		Allowlist:       []string{"list_directory", "read_file"},
		Denylist:        cfg.Approval.Denylist,
		RequireApproval: cfg.Approval.RequireApproval,
		SafeBins:        cfg.Approval.SafeBins,
		AskFallback:     true,
		DefaultDecision: agent.ApprovalAllowed,
		RequestTTL:      5 * time.Minute,
	}
	if cfg.Loop.AutoApprove {
		policy.RequireApproval = nil
	} else if len(policy.RequireApproval) == 0 {
		policy.RequireApproval = []string{"write_file", "edit", "apply_patch", "run_shell"}
	}
	policy.Allowlist = append(policy.Allowlist, cfg.Approval.Allowlist...)

	checker := agent.NewApprovalChecker(policy)
	checker.SetStore(agent.NewMemoryApprovalStore())
	loopCfg.ApprovalChecker = checker
	loopCfg.JobStore = jobs.NewMemoryStore()

	return loopCfg
}

func providerDefaultModel(cfg *config.Config) string {
	p, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]
	if !ok {
		return ""
	}
	return p.DefaultModel
}

// buildProvider constructs the configured default LLM provider. When the
// config enables routing or names at least one provider in its fallback
// chain, every provider the chain/rules can reach is built up front and
// wrapped in a routing.Router so a failing provider's requests spill over
// to the next healthy one; otherwise the default provider is returned
// directly.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	defaultName := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultName == "" {
		defaultName = "anthropic"
	}

	chain := cfg.LLM.FallbackChain
	if len(chain) < 1 && !cfg.LLM.Routing.Enabled {
		return constructNamedProvider(cfg, defaultName)
	}

	names := map[string]struct{}{defaultName: {}}
	for _, name := range chain {
		names[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	for _, rule := range cfg.LLM.Routing.Rules {
		if rule.Target.Provider != "" {
			names[strings.ToLower(strings.TrimSpace(rule.Target.Provider))] = struct{}{}
		}
	}

	built := make(map[string]agent.LLMProvider, len(names))
	for name := range names {
		p, err := constructNamedProvider(cfg, name)
		if err != nil {
			return nil, fmt.Errorf("routable provider %q: %w", name, err)
		}
		built[name] = p
	}

	fallback := cfg.LLM.Routing.Fallback
	if fallback.Provider == "" {
		fallback.Provider = defaultName
		if len(chain) > 0 {
			fallback.Provider = strings.ToLower(strings.TrimSpace(chain[len(chain)-1]))
		}
	}

	cooldown := cfg.LLM.Routing.UnhealthyCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	var rules []routing.Rule
	for _, r := range cfg.LLM.Routing.Rules {
		rules = append(rules, routing.Rule{
			Name:   r.Name,
			Match:  routing.Match{Patterns: r.Match.Patterns, Tags: r.Match.Tags},
			Target: routing.Target{Provider: r.Target.Provider, Model: r.Target.Model},
		})
	}

	var localProviders []string
	if cfg.LLM.AutoDiscover.Ollama.Enabled {
		localProviders = []string{"ollama"}
	}

	return routing.NewRouter(routing.Config{
		DefaultProvider: defaultName,
		PreferLocal:     cfg.LLM.Routing.PreferLocal,
		LocalProviders:  localProviders,
		Rules:           rules,
		Fallback:        routing.Target{Provider: fallback.Provider, Model: fallback.Model},
		FailureCooldown: cooldown,
	}, built), nil
}

// constructNamedProvider builds a single provider by name. Anthropic,
// OpenRouter and OpenAI need an API key in the config; Ollama needs nothing
// and uses http://localhost:11434 when no base URL is set. A missing key or
// an unknown provider name is a startup configuration error.
func constructNamedProvider(cfg *config.Config, name string) (agent.LLMProvider, error) {
	p := cfg.LLM.Providers[name]

	switch name {
	case "anthropic":
		if p.APIKey == "" {
			return nil, fmt.Errorf("no API key configured for provider %q (set ANTHROPIC_API_KEY or llm.providers.anthropic.api_key)", name)
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       p.APIKey,
			BaseURL:      p.BaseURL,
			DefaultModel: p.DefaultModel,
		})
	case "openrouter":
		if p.APIKey == "" {
			return nil, fmt.Errorf("no API key configured for provider %q (set OPENROUTER_API_KEY or llm.providers.openrouter.api_key)", name)
		}
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       p.APIKey,
			DefaultModel: p.DefaultModel,
			AppName:      "cogent",
		})
	case "openai":
		if p.APIKey == "" {
			return nil, fmt.Errorf("no API key configured for provider %q (set OPENAI_API_KEY or llm.providers.openai.api_key)", name)
		}
		return providers.NewOpenAIProvider(p.APIKey), nil
	case "ollama":
		baseURL := p.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      baseURL,
			DefaultModel: p.DefaultModel,
			Timeout:      60 * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// buildSystemPrompt assembles the base instructions plus any long-term
// facts relevant to recentTopics, per the Agent Loop's data flow in
// SPEC_FULL.md §4.7 ("asks C3 to assemble a bounded prompt from Session +
// Memory").
func buildSystemPrompt(workspace string, memStore *memory.Store, recentTopics []string) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	fmt.Fprintf(&b, "\n\nWorkspace: %s\n", workspace)

	if identity, err := agent.LoadIdentityFromWorkspace(workspace); err == nil && identity != nil && identity.HasValues() {
		if identity.Name != "" {
			fmt.Fprintf(&b, "Your name is %s.\n", identity.Name)
		}
		if identity.Vibe != "" {
			fmt.Fprintf(&b, "Personality: %s.\n", identity.Vibe)
		}
	}

	if memStore != nil {
		facts, err := memStore.GetForPrompt(recentTopics)
		if err == nil && len(facts) > 0 {
			b.WriteString("\nWhat you remember about the user:\n")
			for _, f := range facts {
				fmt.Fprintf(&b, "- %s\n", f.Content)
			}
		}
	}

	return b.String()
}
