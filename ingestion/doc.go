// Package ingestion turns a parsed artifact into stored, embedded records.
//
// The Pipeline walks an artifact's notes in waves. For each wave it resolves
// identity keys, locks them, classifies every note against the stored
// content hash, embeds what changed and writes the new records as a group.
//
// Per-note failures are recorded in the returned summary and never abort a
// run. Dry runs perform every read and embedding but issue no writes.
package ingestion
