// Package backend defines the contract between scribe and the model runtimes
// that do the actual inference.
//
// A backend is acquired through a Loader, which turns a LoadFunc into a
// process-wide singleton: at most one instance is ever created, concurrent
// callers share a single in-flight load and every caller receives the
// download progress of that load. A failed load is not remembered, so the
// next Get retries.
//
// Transcriber and Translator are callback driven. Transcribe invokes OnToken
// once per generation step with the ranked candidates and OnChunk at every
// chunk boundary; Translate invokes OnIncrementalOutput once per step. Both
// return only after the last callback. Token ids are turned into text with
// the backend's own Decoder, and Transcriber additionally merges an ordered
// run of chunks with DecodeASR.
package backend
