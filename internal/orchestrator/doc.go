// Package orchestrator drives the analysis pipeline. A Manager runs a pool of
// workers that claim pending jobs from the store; each claimed job gets one
// run loop that walks the step graph, launching every step whose dependencies
// have succeeded and applying the per-kind retry policy to failures.
//
// Steps execute concurrently in their own goroutines but never touch the job
// record themselves. They report progress and outcomes over a channel that the
// job's run loop consumes alone, so job mutation, persistence, event ordering,
// and the monotonic overall-progress guarantee all live in a single flow.
package orchestrator
