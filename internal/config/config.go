// Package config loads the service's process-wide configuration. Config is
// loaded once at startup (defaults, then the YAML file; no environment
// variables are read) and is never mutated afterward — the agent registry and every other
// configuration-derived object are immutable for the life of the process.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/regassist/regassist/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	LLM           LLMConfig                  `yaml:"llm"`
	Agents        map[string]*AgentConfig    `yaml:"agents"`
	Cache         CacheConfig                `yaml:"cache"`
	Index         IndexConfig                `yaml:"index"`
	Limits        LimitsConfig               `yaml:"limits"`
	SearchProxy   SearchProxyConfig          `yaml:"search_proxy"`
	Credentials   map[string]CredentialEntry `yaml:"credentials"`
	Server        ServerConfig               `yaml:"server"`
	Database      DatabaseConfig             `yaml:"database"`
	Observability ObservabilityConfig        `yaml:"observability"`
}

// LLMConfig configures the LLM provider adapter.
type LLMConfig struct {
	Provider        string `yaml:"provider"` // "anthropic" (primary provider id)
	Model           string `yaml:"model"`
	ReasoningBudget int    `yaml:"reasoning_budget"`

	// MaxRetries and RetryDelay configure the provider's retry policy:
	// RetryDelay is the base delay of an exponential backoff (RetryDelay,
	// 2*RetryDelay, 4*RetryDelay, ...) applied between retryable failures.
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay_s"`

	// Failover, when set, names a secondary provider/model serving the same
	// model family.
	Failover *LLMFailoverConfig `yaml:"failover"`
}

// LLMFailoverConfig configures the redundant host used after the primary
// provider exhausts its retry budget.
type LLMFailoverConfig struct {
	Provider string `yaml:"provider"` // "bedrock"
	Model    string `yaml:"model"`
	Region   string `yaml:"region"`
}

// AgentConfig is the on-disk representation of one models.Agent.
type AgentConfig struct {
	SystemPrompt     string   `yaml:"system_prompt"`
	Tools            []string `yaml:"tools"`
	Index            string   `yaml:"index"`
	CitationPatterns []string `yaml:"citation_patterns"`
}

// CacheConfig configures the document cache.
type CacheConfig struct {
	// Enabled is loaded from cache.enabled but read by no component: the
	// document cache is always in use, whatever its value.
	Enabled bool `yaml:"enabled"`

	Backend string `yaml:"backend"` // "s3" | "memory"
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
}

// IndexConfig configures background indexing.
type IndexConfig struct {
	// AutoOnSecondHit is loaded from index.auto_on_second_hit but read by
	// no component: the fetch tools schedule background indexing on a cache
	// hit whatever its value.
	AutoOnSecondHit bool `yaml:"auto_on_second_hit"`

	ChunkTokens  int `yaml:"chunk_tokens"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MaxChunks    int `yaml:"max_chunks"`
}

// LimitsConfig configures per-turn safety bounds.
type LimitsConfig struct {
	MaxToolRounds         int           `yaml:"max_tool_rounds"`
	TurnTimeout           time.Duration `yaml:"turn_timeout_s"`
	PersonalDocMaxSizeMB  int           `yaml:"personal_docs_max_size_mb"`
	PersonalDocMaxPerUser int           `yaml:"personal_docs_max_per_user"`
}

// SearchProxyConfig points at the sole holder of vector-index credentials.
// Token authorizes search/list/delete and personal-document writes; a
// leaked Token alone can never mint regulatory (ownerless) chunks, which
// additionally require RegulatoryWriteToken on /index.
type SearchProxyConfig struct {
	URL                  string `yaml:"url"`
	Token                string `yaml:"token"`
	RegulatoryWriteToken string `yaml:"regulatory_write_token"`
}

// CredentialEntry holds an upstream credential (API key, subscription key,
// OAuth2 client-credentials pair).
type CredentialEntry struct {
	APIKey       string `yaml:"api_key"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	Endpoint     string `yaml:"endpoint"`
}

// ServerConfig configures the gateway's listen address.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	AuthSecret    string        `yaml:"auth_secret"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace_s"`
}

// DatabaseConfig selects and configures the conversation store backend.
// Backend is one of "postgres", "sqlite", or "memory"; "memory" is for
// local development and tests only, since it does not survive a process
// restart.
type DatabaseConfig struct {
	Backend         string        `yaml:"backend"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime_s"`
}

// ObservabilityConfig configures the ambient tracing/metrics surface.
// Unset (the zero value) disables both: tracing becomes a no-op tracer and
// the Prometheus registry, while still mounted at /metrics, reports zero
// activity.
type ObservabilityConfig struct {
	ServiceName   string  `yaml:"service_name"`
	Environment   string  `yaml:"environment"`
	TraceEndpoint string  `yaml:"trace_endpoint"` // OTLP/gRPC collector address; empty disables export
	TraceSampling float64 `yaml:"trace_sampling_rate"`
	TraceInsecure bool    `yaml:"trace_insecure"`
}

// Default returns the configuration baseline, overridden by whatever a
// loaded file supplies.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:   "anthropic",
			Model:      "claude-sonnet-4-5",
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
		},
		Limits: LimitsConfig{
			MaxToolRounds:         8,
			TurnTimeout:           120 * time.Second,
			PersonalDocMaxSizeMB:  20,
			PersonalDocMaxPerUser: 20,
		},
		Index: IndexConfig{
			AutoOnSecondHit: true,
			ChunkTokens:     1000,
			ChunkOverlap:    100,
			MaxChunks:       100,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
		},
		Server: ServerConfig{
			Addr:          ":8080",
			ShutdownGrace: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Backend:         "memory",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			ServiceName:   "regassist",
			TraceSampling: 1.0,
		},
	}
}

// Load reads a YAML config file at path, layering it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// BuildRegistry converts the configured agents into an immutable
// models.Registry.
func (c *Config) BuildRegistry() (*models.Registry, error) {
	agents := make([]*models.Agent, 0, len(c.Agents))
	for name, a := range c.Agents {
		agents = append(agents, &models.Agent{
			Name:             name,
			SystemPrompt:     a.SystemPrompt,
			Tools:            a.Tools,
			SearchIndex:      a.Index,
			CitationPatterns: a.CitationPatterns,
		})
	}
	return models.NewRegistry(agents)
}
