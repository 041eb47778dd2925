// Package pipeline declares the static analysis workflow graph: the set of
// steps, their progress weights, and the dependency edges between them. The
// graph is validated once at construction and read-only afterwards.
package pipeline
