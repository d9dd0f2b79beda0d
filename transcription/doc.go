// Package transcription runs speech-to-text inference for one session.
//
// A Controller owns the session's lifecycle machine and shares the
// process-wide transcriber Loader. Each run gets a fresh Tracker which turns
// backend callbacks into protocol envelopes:
//
//	LOADING -> (initiate|progress|done)* -> LOADED -> ready ->
//	(PARTIAL|CHUNK)* -> [error] -> FINISHED
//
// CHUNK always carries the cumulative decode of every chunk seen so far, so
// consumers replace their finalized text instead of appending to it.
package transcription
