// Package analysis provides the production step executors: source extraction
// from the YouTube Data API, audio transcription and language-model analysis
// through the OpenAI API, and final report aggregation. Each executor
// classifies its failures with the step package's sentinel markers so the
// orchestrator can apply the right retry policy without inspecting payloads.
package analysis
