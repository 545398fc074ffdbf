// Package bulk drives rate-limited bulk operations against a single
// stateful platform session: creating many groups, or sending one message
// to many recipients.
//
// A run partitions its units into fixed-size batches with inter-batch
// cooldowns, paces every unit (fixed delay + jitter, or a stepped adaptive
// backoff), varies outgoing text to avoid exact-duplicate signatures, and
// records one outcome per unit in submission order. A unit failure never
// aborts the run; only invalid input or an unready session does, before any
// unit is attempted.
//
// Exactly one run may be in flight per Runner: the underlying session is a
// single shared writer and concurrent runs are rejected.
package bulk
