// shared/config.go
// YAML configuration for the orchestrator and status CLI. The server list is
// the whole routing table — there is no dynamic registration; backends that
// come and go are handled by the per-request health probe, not by config.

package shared

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ─── Config ───────────────────────────────────────────────────────────────────

// ServerEntry is one backend server as written in the config file.
type ServerEntry struct {
	Host    string      `yaml:"host"`
	Port    int         `yaml:"port"`
	Model   string      `yaml:"model"`
	Role    Role        `yaml:"role"`
	Backend BackendKind `yaml:"backend,omitempty"` // default: text_priming
}

// Timeouts are the per-stage HTTP deadlines, in seconds.
type Timeouts struct {
	HealthS   int `yaml:"health_s"`   // default 5
	PrefillS  int `yaml:"prefill_s"`  // default 30
	DecodeS   int `yaml:"decode_s"`   // default 60
	GenerateS int `yaml:"generate_s"` // default 60
}

// Config is the full orchestrator configuration.
type Config struct {
	Listen    string        `yaml:"listen"` // orchestrator bind address, default ":8080"
	LogLevel  string        `yaml:"log_level,omitempty"`
	Advertise bool          `yaml:"advertise,omitempty"` // mDNS advertisement of the orchestrator
	Servers   []ServerEntry `yaml:"servers"`
	Timeouts  Timeouts      `yaml:"timeouts,omitempty"`
}

// ─── Loading ──────────────────────────────────────────────────────────────────

// LoadConfig reads, defaults, and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(raw)
}

// ParseConfig parses YAML bytes into a validated Config.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Timeouts.HealthS == 0 {
		c.Timeouts.HealthS = 5
	}
	if c.Timeouts.PrefillS == 0 {
		c.Timeouts.PrefillS = 30
	}
	if c.Timeouts.DecodeS == 0 {
		c.Timeouts.DecodeS = 60
	}
	if c.Timeouts.GenerateS == 0 {
		c.Timeouts.GenerateS = 60
	}
	for i := range c.Servers {
		if c.Servers[i].Backend == "" {
			c.Servers[i].Backend = BackendTextPriming
		}
	}
}

func (c *Config) validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("config has no servers")
	}
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Host == "" || s.Port == 0 {
			return fmt.Errorf("server %d: host and port are required", i)
		}
		if s.Model == "" {
			return fmt.Errorf("server %d (%s:%d): model is required", i, s.Host, s.Port)
		}
		switch s.Role {
		case RolePrefill, RoleDecode:
		default:
			return fmt.Errorf("server %d (%s:%d): role must be %q or %q, got %q",
				i, s.Host, s.Port, RolePrefill, RoleDecode, s.Role)
		}
		switch s.Backend {
		case BackendTensorCache, BackendTextPriming:
		default:
			return fmt.Errorf("server %d (%s:%d): unknown backend kind %q",
				i, s.Host, s.Port, s.Backend)
		}
		id := fmt.Sprintf("%s:%d", s.Host, s.Port)
		if seen[id] {
			return fmt.Errorf("duplicate server id %s", id)
		}
		seen[id] = true
	}
	return nil
}

// ─── Derived views ────────────────────────────────────────────────────────────

// Descriptors builds the immutable descriptor list in config (registration) order.
func (c *Config) Descriptors() []ServerDescriptor {
	out := make([]ServerDescriptor, 0, len(c.Servers))
	for _, s := range c.Servers {
		out = append(out, ServerDescriptor{
			ID:        fmt.Sprintf("%s:%d", s.Host, s.Port),
			Host:      s.Host,
			Port:      s.Port,
			ModelType: s.Model,
			Role:      s.Role,
			Backend:   s.Backend,
		})
	}
	return out
}

// HealthTimeout and friends return the stage deadlines as durations.
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.Timeouts.HealthS) * time.Second
}

func (c *Config) PrefillTimeout() time.Duration {
	return time.Duration(c.Timeouts.PrefillS) * time.Second
}

func (c *Config) DecodeTimeout() time.Duration {
	return time.Duration(c.Timeouts.DecodeS) * time.Second
}

func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.Timeouts.GenerateS) * time.Second
}
