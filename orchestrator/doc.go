// Package orchestrator keeps the user-facing state of a scribe session.
//
// A Session owns one worker per pipeline. Envelopes coming back from the
// workers are applied to the session state and then published, together
// with a fresh snapshot, to the session's SSE clients. Envelopes from a run
// the session no longer tracks are dropped.
package orchestrator
