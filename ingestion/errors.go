package ingestion

import "errors"

var (
	// ErrEmbedderRequired is returned when a pipeline is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when a retry budget is less than one.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

	// ErrInvalidBatchSize is returned for a batch size less than one.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrDuplicateIdentity marks a note whose identity key was already
	// claimed by an earlier note in the same run.
	ErrDuplicateIdentity = errors.New("duplicate identity key")
)
