// Package reembed recomputes the vectors of every stored note, typically
// after switching embedding model or provider.
//
// Records keep their identity key and content hash, so a later ingest of
// the same artifact still classifies them as unchanged. Batches are
// embedded with retry and written back with the store's batch upsert.
package reembed
