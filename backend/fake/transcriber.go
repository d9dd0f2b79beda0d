package fake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/backend/vocab"
)

// TimePrecision matches a 30 s window over 1500 encoder positions.
const TimePrecision = 0.02

// ErrDecode is returned by DecodeASR at an injected failure point.
var ErrDecode = errors.New("fake: chunk decode failed")

// Segment is one scripted chunk: the top candidate of every generation
// step followed by the chunk record.
type Segment struct {
	Steps [][]int
	Chunk backend.Chunk
}

// Transcriber replays its segments on every Transcribe call.
type Transcriber struct {
	*vocab.Vocab
	segments []Segment

	failDecodeAt map[int]bool
	emptyStepAt  int
	err          error
	stepDelay    time.Duration
	gate         <-chan struct{}

	mu   sync.Mutex
	runs []backend.TranscribeOptions
}

// TranscriberOption configures a Transcriber.
type TranscriberOption func(*Transcriber)

// FailASRDecodeAt makes DecodeASR fail when the accumulator holds exactly n
// chunks.
func FailASRDecodeAt(n int) TranscriberOption {
	return func(t *Transcriber) { t.failDecodeAt[n] = true }
}

// EmptyCandidatesAt reports an empty candidate list at step i (1-based,
// counted across the whole run).
func EmptyCandidatesAt(i int) TranscriberOption {
	return func(t *Transcriber) { t.emptyStepAt = i }
}

// FailWith makes Transcribe return err after all segments were played.
func FailWith(err error) TranscriberOption {
	return func(t *Transcriber) { t.err = err }
}

// WithStepDelay sleeps between steps so a run can be observed in flight.
func WithStepDelay(d time.Duration) TranscriberOption {
	return func(t *Transcriber) { t.stepDelay = d }
}

// WithGate blocks each run before its first step until gate is closed.
func WithGate(gate <-chan struct{}) TranscriberOption {
	return func(t *Transcriber) { t.gate = gate }
}

// NewTranscriber creates a Transcriber decoding with v.
func NewTranscriber(v *vocab.Vocab, segments []Segment, opts ...TranscriberOption) *Transcriber {
	t := &Transcriber{Vocab: v, segments: segments, failDecodeAt: make(map[int]bool)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TimePrecision implements backend.Transcriber.
func (t *Transcriber) TimePrecision() float64 { return TimePrecision }

// DecodeASR implements backend.ASRDecoder with failure injection.
func (t *Transcriber) DecodeASR(chunks []backend.Chunk, opts backend.ASRDecodeOptions) (string, error) {
	if t.failDecodeAt[len(chunks)] {
		return "", fmt.Errorf("%w at boundary %d", ErrDecode, len(chunks))
	}
	return t.Vocab.DecodeASR(chunks, opts)
}

// Transcribe plays the script. The context is checked between steps.
func (t *Transcriber) Transcribe(ctx context.Context, _ []float32, opts backend.TranscribeOptions) (*backend.TranscribeOutput, error) {
	t.mu.Lock()
	t.runs = append(t.runs, opts)
	t.mu.Unlock()

	if t.gate != nil {
		select {
		case <-t.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	step := 0
	var chunks []backend.Chunk
	for _, seg := range t.segments {
		for _, ids := range seg.Steps {
			if err := t.pause(ctx); err != nil {
				return nil, err
			}
			step++
			candidates := []backend.Candidate{{Tokens: ids}}
			if step == t.emptyStepAt {
				candidates = nil
			}
			if opts.OnToken != nil {
				if err := opts.OnToken(candidates); err != nil {
					return nil, fmt.Errorf("token callback: %w", err)
				}
			}
		}
		chunks = append(chunks, seg.Chunk)
		if opts.OnChunk != nil {
			opts.OnChunk(seg.Chunk)
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	text, _ := t.Vocab.DecodeASR(chunks, backend.ASRDecodeOptions{TimePrecision: TimePrecision})
	return &backend.TranscribeOutput{Text: strings.TrimSpace(text), Chunks: chunks}, nil
}

func (t *Transcriber) pause(ctx context.Context) error {
	if t.stepDelay > 0 {
		select {
		case <-time.After(t.stepDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// Runs returns the options of every Transcribe call so far.
func (t *Transcriber) Runs() []backend.TranscribeOptions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]backend.TranscribeOptions(nil), t.runs...)
}

// ScriptFromText builds a vocabulary and a script that transcribes text,
// one word per step and wordsPerChunk words per chunk. Every step's
// candidate holds the chunk's tokens so far, as a real decoder would.
func ScriptFromText(text string, wordsPerChunk int) (*vocab.Vocab, []Segment) {
	if wordsPerChunk <= 0 {
		wordsPerChunk = 8
	}
	v := vocab.New(nil)
	words := strings.Fields(text)
	var segments []Segment
	for start := 0; start < len(words); start += wordsPerChunk {
		end := min(start+wordsPerChunk, len(words))
		var seg Segment
		var ids []int
		for i, w := range words[start:end] {
			if start+i > 0 {
				w = " " + w
			}
			ids = append(ids, v.Intern(w))
			seg.Steps = append(seg.Steps, append([]int(nil), ids...))
		}
		seg.Chunk = backend.Chunk{Tokens: ids, Stride: [3]int{30 * 16000, 0, 0}, IsLast: end == len(words)}
		segments = append(segments, seg)
	}
	return v, segments
}
