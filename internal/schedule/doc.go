// Package schedule is the planning core: weekly class entries, time-of-day
// parsing, conflict detection, and per-day greedy selection of a maximum set
// of non-overlapping classes.
//
// The package is deliberately synchronous and lock-free. An Engine is owned
// by exactly one caller; anything that shares one across goroutines (see
// internal/planner) must wrap calls in its own mutual exclusion.
package schedule
