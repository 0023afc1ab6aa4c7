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


// Package config builds the runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"

	"github.com/poiesic/pke/ai"
	"github.com/poiesic/pke/core"
)

// Environment variables read by FromEnv.
const (
	EnvStorePath           = "PKE_STORE_PATH"
	EnvStoreKey            = "PKE_STORE_KEY"
	EnvEmbeddingProvider   = "PKE_EMBEDDING_PROVIDER"
	EnvEmbeddingHost       = "PKE_EMBEDDING_HOST"
	EnvEmbeddingModel      = "PKE_EMBEDDING_MODEL"
	EnvEmbeddingToken      = "PKE_EMBEDDING_TOKEN"
	EnvEmbeddingDimensions = "PKE_EMBEDDING_DIMENSIONS"
	EnvConcurrency         = "PKE_CONCURRENCY"
	EnvBatchSize           = "PKE_BATCH_SIZE"
	EnvCallTimeout         = "PKE_CALL_TIMEOUT"
	EnvMaxRetries          = "PKE_MAX_RETRIES"
)

// Config is the explicit configuration passed to every component.
type Config struct {
	// StorePath is the badger directory. Required for live ingests.
	StorePath string

	// StoreKey enables encryption at rest when set. Must be 16, 24 or 32
	// bytes long. Never logged.
	StoreKey string

	AI *ai.Config

	Concurrency int
	BatchSize   int
	CallTimeout time.Duration
	MaxRetries  int
}

// Default returns a Config with the stub embedder and no store.
func Default() *Config {
	return &Config{
		AI:          ai.DefaultConfig(),
		Concurrency: max(runtime.NumCPU()/2, 1),
		BatchSize:   32,
		CallTimeout: 30 * time.Second,
		MaxRetries:  3,
	}
}

// Load reads dotenvPath into the process environment when the file exists
// and then builds a Config from the environment. Variables already set in
// the environment take precedence over the file.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: loading %s: %v", core.ErrConfig, dotenvPath, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds and validates a Config using lookup for each variable.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	c := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvStorePath); ok {
		c.StorePath = v
	}
	if v, ok := lookup(EnvStoreKey); ok {
		c.StoreKey = v
	}
	if v, ok := get(EnvEmbeddingProvider); ok {
		c.AI.Provider = v
	}
	if v, ok := get(EnvEmbeddingHost); ok {
		c.AI.Host = v
	}
	if v, ok := get(EnvEmbeddingModel); ok {
		c.AI.Model = v
	}
	if v, ok := get(EnvEmbeddingToken); ok {
		c.AI.Token = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvEmbeddingDimensions, &c.AI.Dimensions},
		{EnvConcurrency, &c.Concurrency},
		{EnvBatchSize, &c.BatchSize},
		{EnvMaxRetries, &c.MaxRetries},
	}
	for _, f := range ints {
		v, ok := get(f.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q is not an integer", core.ErrConfig, f.key, v)
		}
		*f.dst = n
	}

	if v, ok := get(EnvCallTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrConfig, EnvCallTimeout, err)
		}
		c.CallTimeout = d
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate validates the configuration. Errors wrap core.ErrConfig.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.StoreKey, validation.By(validKeyLength)),
		validation.Field(&c.AI, validation.Required),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.CallTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfig, err)
	}
	return c.AI.Validate()
}

// RequireStore fails unless a store path is configured.
func (c *Config) RequireStore() error {
	if c.StorePath == "" {
		return fmt.Errorf("%w: %s is required", core.ErrConfig, EnvStorePath)
	}
	return nil
}

// Encrypted reports whether the store is encrypted at rest.
func (c *Config) Encrypted() bool {
	return c.StoreKey != ""
}

// String renders the configuration with secrets redacted.
func (c *Config) String() string {
	key := ""
	if c.Encrypted() {
		key = "[redacted]"
	}
	return fmt.Sprintf("store=%s key=%s concurrency=%d batch=%d timeout=%s retries=%d ai={%s}",
		c.StorePath, key, c.Concurrency, c.BatchSize, c.CallTimeout, c.MaxRetries, c.AI)
}

func validKeyLength(value any) error {
	key, _ := value.(string)
	switch len(key) {
	case 0, 16, 24, 32:
		return nil
	default:
		return errors.New("must be 16, 24 or 32 bytes")
	}
}
