package translation

import (
	"errors"
	"sync"

	"github.com/kbukum/scribe/backend"
	apperrors "github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/protocol"
)

// ErrNoCandidates is the cause of the contract violation raised when the
// backend reports an output step without candidates.
var ErrNoCandidates = errors.New("output step produced no candidates")

// Tracker turns incremental backend output into update envelopes.
type Tracker struct {
	model backend.Translator
	hdr   protocol.Header
	emit  protocol.Emit

	mu       sync.Mutex
	last     string
	finished bool
	err      error
}

// NewTracker creates a Tracker for the run identified by hdr.
func NewTracker(model backend.Translator, hdr protocol.Header, emit protocol.Emit) *Tracker {
	return &Tracker{model: model, hdr: hdr, emit: emit}
}

// OnOutput decodes the top candidate and emits it as the cumulative
// translation.
func (t *Tracker) OnOutput(candidates []backend.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return nil
	}
	if len(candidates) == 0 {
		t.err = apperrors.ContractViolation("The translation backend reported a step without candidates.").
			WithCause(ErrNoCandidates)
		return t.err
	}
	text, err := t.model.Decode(candidates[0].Tokens)
	if err != nil {
		t.err = apperrors.InferenceFailed(pipelineName, err)
		return t.err
	}
	t.last = text
	t.emit(protocol.Update{Header: t.hdr, Output: text})
	return nil
}

// Complete emits the terminal envelope once. out is nil for a failed run.
func (t *Tracker) Complete(out *backend.TranslationOutput) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.emit(protocol.Complete{Header: t.hdr, Output: out})
}

// Err returns the error raised by OnOutput, if any.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Last returns the text of the latest update.
func (t *Tracker) Last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
