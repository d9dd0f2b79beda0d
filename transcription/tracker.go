package transcription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/scribe/backend"
	apperrors "github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/protocol"
)

// ErrNoCandidates is the cause of the contract violation raised when the
// backend reports a generation step without candidates.
var ErrNoCandidates = errors.New("generation step produced no candidates")

// Tracker accumulates the chunks of one run and emits partial and
// cumulative results. Backends may call it from any goroutine.
type Tracker struct {
	model         backend.Transcriber
	stride        time.Duration
	timePrecision float64
	hdr           protocol.Header
	emit          protocol.Emit
	log           *logger.Logger
	metrics       *observability.InferenceMetrics

	mu       sync.Mutex
	chunks   []backend.Chunk
	finished bool
	err      error
}

// NewTracker creates a Tracker for the run identified by hdr.
func NewTracker(model backend.Transcriber, stride time.Duration, hdr protocol.Header, emit protocol.Emit, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.WithComponent("transcription")
	}
	return &Tracker{
		model:         model,
		stride:        stride,
		timePrecision: model.TimePrecision(),
		hdr:           hdr,
		emit:          emit,
		log:           log.WithRun(string(hdr.Pipeline), hdr.RunID),
	}
}

// OnToken handles one generation step. Only the top candidate is decoded.
func (t *Tracker) OnToken(candidates []backend.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return nil
	}
	if len(candidates) == 0 {
		t.err = apperrors.ContractViolation("The transcription backend reported a step without candidates.").
			WithCause(ErrNoCandidates)
		return t.err
	}
	text, err := t.model.Decode(candidates[0].Tokens)
	if err != nil {
		t.err = apperrors.InferenceFailed(string(t.hdr.Pipeline), err)
		return t.err
	}
	t.metrics.RecordPartial(context.Background())
	t.emit(protocol.Partial{Header: t.hdr, Result: protocol.Result{Text: text}})
	return nil
}

// OnChunk appends chunk and emits the decode of the whole accumulator. A
// failed decode is logged and skipped; the run continues.
func (t *Tracker) OnChunk(chunk backend.Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.chunks = append(t.chunks, chunk)
	text, err := t.model.DecodeASR(t.chunks, backend.ASRDecodeOptions{
		TimePrecision: t.timePrecision,
		Stride:        t.stride,
	})
	if err != nil {
		t.log.Warn("chunk decode failed", logger.ErrorFields("decode_asr",
			apperrors.ChunkDecodeFailed(len(t.chunks), err)))
		t.metrics.RecordChunkDecodeFailure(context.Background())
		return
	}
	t.metrics.RecordChunk(context.Background())
	t.emit(protocol.Chunk{Header: t.hdr, Result: protocol.Result{Text: strings.TrimSpace(text)}})
}

// Finish emits FINISHED. Later calls on the tracker emit nothing.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.emit(protocol.Finished{Header: t.hdr})
}

// Err returns the contract or decode error raised by OnToken, if any.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Chunks returns a copy of the accumulated chunks.
func (t *Tracker) Chunks() []backend.Chunk {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]backend.Chunk(nil), t.chunks...)
}
