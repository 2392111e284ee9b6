package cli

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".giztoy"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Keys understood in Context.Extra.
const (
	ExtraProvider          = "provider"
	ExtraModel             = "model"
	ExtraVideoModel        = "video_model"
	ExtraSystemInstruction = "system_instruction"
	ExtraMediaBucket       = "media_bucket"
	ExtraMediaPrefix       = "media_prefix"
	ExtraMediaRegion       = "media_region"
	ExtraMediaEndpoint     = "media_endpoint"
)

// ExtraKeys lists the recognized Extra keys in display order.
var ExtraKeys = []string{
	ExtraProvider,
	ExtraModel,
	ExtraVideoModel,
	ExtraSystemInstruction,
	ExtraMediaBucket,
	ExtraMediaPrefix,
	ExtraMediaRegion,
	ExtraMediaEndpoint,
}

// Providers accepted for the chat backend.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config represents the configuration of the guide client
type Config struct {
	// AppName is the application name
	AppName string `yaml:"-"`

	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	configPath string
}

// Context is one named backend configuration
type Context struct {
	Name string `yaml:"name" json:"name"`

	// APIKey is the API key for the chat and video backends
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the backend endpoint
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Timeout is the chat request timeout in seconds
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Extra map[string]string `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// LoadConfig loads or creates configuration for the specified app
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		paths, err := NewPaths(appName)
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = paths.ConfigFile()
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, ctx := range cfg.Contexts {
		if ctx == nil {
			cfg.Contexts[name] = &Context{Name: name}
			continue
		}
		ctx.Name = name
	}

	cfg.AppName = appName
	cfg.configPath = configPath
	return cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// AddContext adds or replaces a context. The first context added becomes
// the current one.
func (c *Config) AddContext(name string, ctx *Context) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("context name is required")
	}
	for k := range ctx.Extra {
		if !slices.Contains(ExtraKeys, k) {
			return fmt.Errorf("unknown extra key %q", k)
		}
	}
	if p := ctx.GetExtra(ExtraProvider); p != "" && p != ProviderGemini && p != ProviderOpenAI {
		return fmt.Errorf("unknown provider %q", p)
	}
	ctx.Name = name
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one when name
// is empty. With neither, an empty context is returned so the client can
// run on environment settings alone.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext == "" {
		return &Context{}, nil
	}
	return c.GetContext(c.CurrentContext)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetExtra returns an extra value for the context
func (ctx *Context) GetExtra(key string) string {
	if ctx == nil || ctx.Extra == nil {
		return ""
	}
	return ctx.Extra[key]
}

// SetExtra sets an extra value for the context. An empty value removes
// the key.
func (ctx *Context) SetExtra(key, value string) {
	if value == "" {
		delete(ctx.Extra, key)
		return
	}
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}

// Provider returns the chat provider, gemini by default.
func (ctx *Context) Provider() string {
	if p := ctx.GetExtra(ExtraProvider); p != "" {
		return p
	}
	return ProviderGemini
}

func (ctx *Context) Model() string             { return ctx.GetExtra(ExtraModel) }
func (ctx *Context) VideoModel() string        { return ctx.GetExtra(ExtraVideoModel) }
func (ctx *Context) SystemInstruction() string { return ctx.GetExtra(ExtraSystemInstruction) }

// RequestTimeout returns Timeout as a duration, or fallback when unset.
func (ctx *Context) RequestTimeout(fallback time.Duration) time.Duration {
	if ctx == nil || ctx.Timeout <= 0 {
		return fallback
	}
	return time.Duration(ctx.Timeout) * time.Second
}

// MediaConfig describes where generated videos are kept.
type MediaConfig struct {
	Bucket   string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
}

// Media returns the media settings; an empty Bucket means the local
// session store.
func (ctx *Context) Media() MediaConfig {
	return MediaConfig{
		Bucket:   ctx.GetExtra(ExtraMediaBucket),
		Prefix:   ctx.GetExtra(ExtraMediaPrefix),
		Region:   ctx.GetExtra(ExtraMediaRegion),
		Endpoint: ctx.GetExtra(ExtraMediaEndpoint),
	}
}

// ParseExtra parses "key=value" pairs into an Extra map.
func ParseExtra(pairs []string) (map[string]string, error) {
	extra := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid extra %q, want key=value", p)
		}
		if !slices.Contains(ExtraKeys, k) {
			return nil, fmt.Errorf("unknown extra key %q", k)
		}
		extra[k] = strings.TrimSpace(v)
	}
	return extra, nil
}

// MaskAPIKey masks the API key for display
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Masked returns a copy of ctx safe to print.
func (ctx *Context) Masked() *Context {
	cp := *ctx
	cp.APIKey = MaskAPIKey(ctx.APIKey)
	cp.Extra = maps.Clone(ctx.Extra)
	return &cp
}

// FormatTimeout renders a timeout in seconds for listings.
func FormatTimeout(sec int) string {
	if sec <= 0 {
		return "default"
	}
	return strconv.Itoa(sec) + "s"
}
