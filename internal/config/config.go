package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures all tunable settings for the cheapskate agent.
type Config struct {
	App         AppConfig         `yaml:"app"`
	LLM         LLMConfig         `yaml:"llm"`
	Browser     BrowserConfig     `yaml:"browser"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Storage     StorageConfig     `yaml:"storage"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	MCP         MCPConfig         `yaml:"mcp"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	// Provider is "ollama" or "gemini".
	Provider string `yaml:"provider"`
	// Ollama endpoint, e.g. http://localhost:11434.
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	GeminiModel string `yaml:"gemini_model"`
	// API key for Gemini; normally supplied via GEMINI_API_KEY.
	GeminiAPIKey string `yaml:"gemini_api_key"`
	// Request timeout (e.g., "60s").
	RequestTimeout string `yaml:"request_timeout"`
}

// BrowserConfig configures how Chrome is launched for Rod.
type BrowserConfig struct {
	// Headless controls whether Chrome runs without a visible window (default: false,
	// marketplaces tend to challenge headless traffic).
	Headless *bool `yaml:"headless"`
	// Optional persistent profile directory so logins survive restarts.
	UserDataDir string `yaml:"user_data_dir"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Timeout for individual element lookups (e.g., "2s").
	LocateTimeout string `yaml:"locate_timeout"`
	// Viewport width for new pages (default: 1920).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for new pages (default: 1080).
	ViewportHeight int `yaml:"viewport_height"`
}

// NegotiationConfig tunes the offer policy.
type NegotiationConfig struct {
	// MaxRounds is the round budget before the engine walks away (default: 5).
	MaxRounds int `yaml:"max_rounds"`
	// EscalationPercents are percentage-of-price tiers by round, clamped at the
	// final tier (default: 65, 85, 95, 100).
	EscalationPercents []int `yaml:"escalation_percents"`
	// PlaceholderPriceThreshold: listings priced at or below this are treated as
	// having an unknown price (default: 100).
	PlaceholderPriceThreshold float64 `yaml:"placeholder_price_threshold"`
	// Persona selects the system prompt used for message generation.
	Persona string `yaml:"persona"`
}

// MarketplaceConfig points the agent at the target site.
type MarketplaceConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type StorageConfig struct {
	// HistoryFile is the JSON transcript store path.
	HistoryFile string `yaml:"history_file"`
	// ScreenshotDir receives diagnostic and on-demand screenshots.
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// MonitorConfig tunes the background loops.
type MonitorConfig struct {
	// OverlayInterval between overlay-dismissal sweeps (e.g., "5s").
	OverlayInterval string `yaml:"overlay_interval"`
	// CaptureInterval between live screenshots / unread polls (e.g., "10s").
	CaptureInterval string `yaml:"capture_interval"`
	// LivePath is where the live-capture loop writes its screenshot.
	LivePath string `yaml:"live_path"`
}

type MCPConfig struct {
	// When set, exposes the action catalog as MCP tools over SSE on this port.
	SSEPort int `yaml:"sse_port"`
}

// DefaultConfig provides reasonable defaults for local use.
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:    "cheapskate",
			Version: "0.1.0",
			LogFile: "cheapskate.log",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
			GeminiModel:    "gemini-2.0-flash",
			RequestTimeout: "60s",
		},
		Browser: BrowserConfig{
			UserDataDir:              ".cheapskate/profile",
			DefaultNavigationTimeout: "15s",
			LocateTimeout:            "2s",
			ViewportWidth:            1920,
			ViewportHeight:           1080,
		},
		Negotiation: NegotiationConfig{
			MaxRounds:                 5,
			EscalationPercents:        []int{65, 85, 95, 100},
			PlaceholderPriceThreshold: 100,
			Persona:                   "chris_voss",
		},
		Marketplace: MarketplaceConfig{
			BaseURL: "https://www.carousell.sg",
		},
		Storage: StorageConfig{
			HistoryFile:   "chat_history.json",
			ScreenshotDir: "screenshots",
		},
		Monitor: MonitorConfig{
			OverlayInterval: "5s",
			CaptureInterval: "10s",
			LivePath:        "screenshots/live.png",
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
	}
}

// Load reads YAML config from disk, overlays defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv overlays environment variables on top of file values. Secrets and
// provider selection are the usual deployment-time knobs.
func (c *Config) applyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.LLM.OllamaURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.LLM.OllamaModel = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.LLM.GeminiModel = v
	}
	if v := os.Getenv("MARKET_USERNAME"); v != "" {
		c.Marketplace.Username = v
	}
	if v := os.Getenv("MARKET_PASSWORD"); v != "" {
		c.Marketplace.Password = v
	}
	if v := os.Getenv("HEADLESS_BROWSER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = &b
		}
	}
	if v := os.Getenv("MAX_NEGOTIATION_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Negotiation.MaxRounds = n
		}
	}
}

// Validate ensures required fields exist so the agent can start deterministically.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errors.New("app.name is required")
	}
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.OllamaURL == "" {
			return errors.New("llm.ollama_url is required for the ollama provider")
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return errors.New("llm.gemini_api_key (or GEMINI_API_KEY) is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q (want ollama or gemini)", c.LLM.Provider)
	}
	if c.Marketplace.BaseURL == "" {
		return errors.New("marketplace.base_url is required")
	}
	if c.Negotiation.MaxRounds <= 0 {
		return errors.New("negotiation.max_rounds must be positive")
	}
	if len(c.Negotiation.EscalationPercents) == 0 {
		return errors.New("negotiation.escalation_percents must not be empty")
	}
	for i, p := range c.Negotiation.EscalationPercents {
		if p <= 0 || p > 100 {
			return fmt.Errorf("negotiation.escalation_percents[%d] = %d out of range (1-100]", i, p)
		}
		if i > 0 && p < c.Negotiation.EscalationPercents[i-1] {
			return errors.New("negotiation.escalation_percents must be non-decreasing")
		}
	}
	return nil
}

// RequestTimeout returns the parsed provider request timeout with a sane default.
func (l LLMConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(l.RequestTimeout, 60*time.Second)
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDurationOr(b.DefaultNavigationTimeout, 15*time.Second)
}

// GetLocateTimeout returns the per-strategy element lookup timeout.
func (b BrowserConfig) GetLocateTimeout() time.Duration {
	return parseDurationOr(b.LocateTimeout, 2*time.Second)
}

// IsHeadless returns whether Chrome should run headless (default: false).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return false
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// GetOverlayInterval returns the overlay sweep interval with a sane default.
func (m MonitorConfig) GetOverlayInterval() time.Duration {
	return parseDurationOr(m.OverlayInterval, 5*time.Second)
}

// GetCaptureInterval returns the live-capture interval with a sane default.
func (m MonitorConfig) GetCaptureInterval() time.Duration {
	return parseDurationOr(m.CaptureInterval, 10*time.Second)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
