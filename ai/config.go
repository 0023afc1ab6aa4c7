// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"fmt"
	"strings"

	"github.com/poiesic/pke/core"
)

// Embedding provider names accepted in Config.Provider.
const (
	ProviderStub   = "stub"
	ProviderOpenAI = "openai"
)

// DefaultDimensions is the vector length of the stub provider and the
// default expected length for remote providers.
const DefaultDimensions = 1536

// Config holds configuration for the embedding provider.
type Config struct {
	// Provider selects the embedding variant: "stub" or "openai".
	Provider string

	// Host is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	Host string

	// Model is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	Model string

	// Token authenticates against the embedding service. Never logged.
	// Local OpenAI-compatible services accept any value.
	Token string

	// Dimensions is the vector length every embedding must have.
	Dimensions int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the embedding provider variant.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithHost sets the embedding service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithToken sets the API token.
func WithToken(token string) ConfigOption {
	return func(c *Config) {
		c.Token = token
	}
}

// WithDimensions sets the expected vector length.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// DefaultConfig returns a Config using the offline stub provider, with
// sensible defaults for a local OpenAI-compatible service should the
// provider be switched.
func DefaultConfig() *Config {
	return &Config{
		Provider:   ProviderStub,
		Host:       "http://localhost:11434/v1",
		Model:      "embeddinggemma",
		Token:      "none",
		Dimensions: DefaultDimensions,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithProvider(ProviderOpenAI),
//	    WithHost("http://localhost:11434"),
//	    WithModel("nomic-embed-text"),
//	    WithDimensions(768),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It lowercases the provider name and adds the /v1 suffix to the host if
// missing, which is required by most OpenAI-compatible APIs (Ollama,
// LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host = strings.TrimSuffix(c.Host, "/") + "/v1"
	}
	if c.Token == "" {
		c.Token = "none"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Dimensions < 1 {
		return fmt.Errorf("%w: ai config: Dimensions must be positive", core.ErrConfig)
	}
	switch c.Provider {
	case ProviderStub:
		return nil
	case ProviderOpenAI:
		if c.Host == "" {
			return fmt.Errorf("%w: ai config: Host is required", core.ErrConfig)
		}
		if c.Model == "" {
			return fmt.Errorf("%w: ai config: Model is required", core.ErrConfig)
		}
		return nil
	default:
		return fmt.Errorf("%w: ai config: unknown provider %q", core.ErrConfig, c.Provider)
	}
}

// String renders the configuration with the token redacted.
func (c *Config) String() string {
	token := ""
	if c.Token != "" && c.Token != "none" {
		token = "[redacted]"
	}
	return fmt.Sprintf("provider=%s host=%s model=%s dimensions=%d token=%s",
		c.Provider, c.Host, c.Model, c.Dimensions, token)
}
