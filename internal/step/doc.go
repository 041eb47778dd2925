// Package step defines the uniform contract every pipeline step executor must
// satisfy, the error taxonomy used to classify step failures, and the retry
// policy that maps each error kind to a retry budget and backoff schedule.
package step
