// Package deduplication keeps one open root cause report per failure.
//
// # Signatures
//
// A failure is identified by sha256(scope_type|scope_id|cause), where the
// cause key is lowercased, whitespace-collapsed and (by default) has digit
// runs masked. Two detections with the same signature describe the same
// failure.
//
// # Insert or increment
//
// InsertOrIncrement looks up the open report for a signature inside a
// transaction. If one exists its recurrence_count is bumped; otherwise a new
// OPEN report is inserted with its confidence computed from the evidence and
// the number of earlier closed reports that carried the signature.
//
// The storage layer enforces a partial unique index on failure_signature
// over non-terminal rows. When two writers race, the loser's insert fails
// with storage.ErrUniqueViolation; the deduplicator discards that
// transaction and retries, this time finding and incrementing the winner.
//
// Once a report is RESOLVED or CLOSED_WONT_FIX the signature is free and the
// next detection opens a fresh report.
//
// # Configuration
//
//   - MaskDigits: true
//   - MaxConflictRetries: 3
//   - PatternScorePerPrior: 10
//
// See DefaultConfig() for full default values.
package deduplication
