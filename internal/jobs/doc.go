// Package jobs defines the persisted analysis job model and its SQLite-backed
// store. A job is created Pending on submission, driven through Running by
// exactly one orchestration flow, and becomes read-only once it reaches a
// terminal state.
package jobs
