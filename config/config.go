// Package config loads the explicit startup configuration: the tool servers to
// discover, timeouts, the collision policy and provider credentials.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport is the kind of channel used to reach a tool server.
type Transport string

const (
	// TransportSubprocess launches a local process and speaks MCP over its stdin/stdout.
	TransportSubprocess Transport = "subprocess"
	// TransportHTTPStream connects to a streamable HTTP MCP endpoint.
	TransportHTTPStream Transport = "http-stream"
)

// CollisionPolicy decides what discovery does when two servers expose the same tool name.
type CollisionPolicy string

const (
	// CollisionError aborts discovery.
	CollisionError CollisionPolicy = "error"
	// CollisionNamespace registers every tool as "server.tool".
	CollisionNamespace CollisionPolicy = "namespace"
	// CollisionOverwrite keeps the tool from the server listed last.
	CollisionOverwrite CollisionPolicy = "overwrite"
)

// Environment variables holding credentials.
const (
	EnvGroqAPIKey        = "GROQ_API_KEY"
	EnvOpenWeatherAPIKey = "OPENWEATHER_API_KEY"
)

// ServerConfig identifies one tool server.
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport Transport         `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Dir       string            `yaml:"dir,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	// Include, when non-empty, restricts discovery to the listed tool names.
	Include []string `yaml:"include,omitempty"`
	// Exclude drops the listed tool names. Ignored when Include is set.
	Exclude []string `yaml:"exclude,omitempty"`
}

// EnvList renders Env as sorted KEY=VALUE pairs for exec.Cmd.
func (s ServerConfig) EnvList() []string {
	if len(s.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Config is the orchestrator configuration.
type Config struct {
	Servers         []ServerConfig  `yaml:"servers"`
	ConnectTimeout  time.Duration   `yaml:"connect_timeout"`
	CallTimeout     time.Duration   `yaml:"call_timeout"`
	CollisionPolicy CollisionPolicy `yaml:"collision_policy"`
	// StrictArgs rejects tool arguments that fail the tool's input schema
	// instead of only logging them.
	StrictArgs      bool            `yaml:"strict_args"`
	Model           string          `yaml:"model"`
	MaxIterations   int             `yaml:"max_iterations"`

	// Credentials are only read from the environment.
	GroqAPIKey        string `yaml:"-"`
	OpenWeatherAPIKey string `yaml:"-"`
}

// Default returns the configuration of the reference deployment: the math
// server as a subprocess and the weather server on localhost:3000.
func Default() *Config {
	return &Config{
		Servers: []ServerConfig{
			{
				Name:      "Math",
				Transport: TransportSubprocess,
				Command:   "mathserver",
			},
			{
				Name:      "Weather",
				Transport: TransportHTTPStream,
				URL:       "http://localhost:3000/mcp",
			},
		},
		ConnectTimeout:  10 * time.Second,
		CallTimeout:     30 * time.Second,
		CollisionPolicy: CollisionError,
		Model:           "llama3-70b-8192",
		MaxIterations:   10,
	}
}

// Load reads a YAML file over the defaults and fills credentials from the
// environment. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Fields absent from data keep their current value.
func Parse(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyEnv() {
	c.GroqAPIKey = os.Getenv(EnvGroqAPIKey)
	c.OpenWeatherAPIKey = os.Getenv(EnvOpenWeatherAPIKey)
}

// Validate checks the structural configuration and reports every problem at once.
func (c *Config) Validate() error {
	v := NewValidator()
	if len(c.Servers) == 0 {
		v.Add("servers", "at least one server is required")
	}
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		prefix := fmt.Sprintf("servers[%d]", i)
		v.validateServer(prefix, s)
		if s.Name != "" {
			if seen[s.Name] {
				v.Add(prefix+".name", fmt.Sprintf("duplicate server name %q", s.Name))
			}
			seen[s.Name] = true
		}
	}
	v.RequireNonNegativeDuration("connect_timeout", c.ConnectTimeout)
	v.RequireNonNegativeDuration("call_timeout", c.CallTimeout)
	v.ValidateOneOf("collision_policy", string(c.CollisionPolicy),
		string(CollisionError), string(CollisionNamespace), string(CollisionOverwrite))
	v.RequirePositive("max_iterations", c.MaxIterations)
	return v.Error()
}

// ValidateCredentials checks the credentials the orchestrator cannot run without.
// The weather credential is optional: its absence degrades one tool only.
func (c *Config) ValidateCredentials() error {
	return NewValidator().RequireNonEmpty(EnvGroqAPIKey, c.GroqAPIKey).Error()
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}
