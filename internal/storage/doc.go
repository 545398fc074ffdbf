// Package storage persists bulk-run history.
//
// Two drivers share one Store interface:
//   - "file": dependency-free JSON Lines append log
//   - "sqlite": SQLite database (runs + per-unit outcomes)
//
// Storage is optional; Open returns (nil, nil) when disabled and callers
// treat a nil Store as "do not persist".
package storage
