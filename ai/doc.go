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


// Package ai provides the embedding abstraction used during ingestion.
//
// The Embedder interface maps note text to a fixed-length float32 vector.
// Callers depend on the interface; variants are chosen by Config.Provider
// at the composition root.
//
// # Implementation Packages
//
//   - ai/stub: Offline deterministic embedder, no network access
//   - ai/openai: Any OpenAI-compatible embedding endpoint via langchaingo
//   - ai/mock: Test double with call counting and behavior injection
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewEmbedder, stub.NewEmbedder) return the
// ai.Embedder interface. The test constructor mock.NewMockEmbedder returns
// the concrete type so tests can inject behavior and assert call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithProvider(ai.ProviderStub))
//	embedder, err := stub.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := embedder.EmbedText(ctx, "Hello world")
//
// Empty or whitespace-only text always embeds to ai.ZeroVector(Dimensions()).
package ai
