// Package translation runs text translation for one session.
//
// Envelope order of a run:
//
//	LOADING -> (initiate|progress|done)* -> LOADED -> update* -> [error] -> complete
//
// Every update carries the whole translation decoded so far. A failed run
// still ends with complete, with no output.
package translation
