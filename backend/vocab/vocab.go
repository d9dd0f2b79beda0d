// Package vocab maps token ids to text pieces and implements the decoding
// both backends share: plain decoding of one candidate and the multi-chunk
// merge used at transcription chunk boundaries.
package vocab

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kbukum/scribe/backend"
)

var (
	// ErrUnknownToken is returned when an id has no piece.
	ErrUnknownToken = errors.New("unknown token id")
	// ErrTimePrecision is returned by DecodeASR when no time precision is given.
	ErrTimePrecision = errors.New("time precision must be positive")
)

// Vocab is a token table. It is safe for concurrent use; Intern may grow it
// while other goroutines decode.
type Vocab struct {
	mu             sync.RWMutex
	pieces         []string
	index          map[string]int
	special        map[int]bool
	timestampBegin int
	spaceMarker    string
}

// Option configures a Vocab.
type Option func(*Vocab)

// WithSpecial marks ids that Decode skips.
func WithSpecial(ids ...int) Option {
	return func(v *Vocab) {
		for _, id := range ids {
			v.special[id] = true
		}
	}
}

// WithTimestampBegin marks every id at or above begin as a timestamp token.
func WithTimestampBegin(begin int) Option {
	return func(v *Vocab) { v.timestampBegin = begin }
}

// WithSpaceMarker sets the piece prefix that stands for a space, such as
// "Ġ" for byte-level BPE or "▁" for SentencePiece.
func WithSpaceMarker(marker string) Option {
	return func(v *Vocab) { v.spaceMarker = marker }
}

// New creates a Vocab where pieces[i] is the text of token i.
func New(pieces []string, opts ...Option) *Vocab {
	v := &Vocab{
		pieces:  append([]string(nil), pieces...),
		index:   make(map[string]int, len(pieces)),
		special: make(map[int]bool),
	}
	for i, p := range v.pieces {
		if _, dup := v.index[p]; !dup {
			v.index[p] = i
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Size returns the number of pieces.
func (v *Vocab) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.pieces)
}

// Intern returns the id of piece, appending it when new.
func (v *Vocab) Intern(piece string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.index[piece]; ok {
		return id
	}
	v.pieces = append(v.pieces, piece)
	id := len(v.pieces) - 1
	v.index[piece] = id
	return id
}

// Encode interns each piece in order.
func (v *Vocab) Encode(pieces ...string) []int {
	ids := make([]int, len(pieces))
	for i, p := range pieces {
		ids[i] = v.Intern(p)
	}
	return ids
}

// IsTimestamp reports whether id is a timestamp token.
func (v *Vocab) IsTimestamp(id int) bool {
	return v.timestampBegin > 0 && id >= v.timestampBegin
}

// Decode concatenates the pieces of ids, skipping special and timestamp
// tokens.
func (v *Vocab) Decode(ids []int) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var sb strings.Builder
	for _, id := range ids {
		if v.special[id] || v.IsTimestamp(id) {
			continue
		}
		if id < 0 || id >= len(v.pieces) {
			return "", fmt.Errorf("%w: %d", ErrUnknownToken, id)
		}
		p := v.pieces[id]
		if v.spaceMarker != "" {
			p = strings.ReplaceAll(p, v.spaceMarker, " ")
		}
		sb.WriteString(p)
	}
	return sb.String(), nil
}

// DecodeASR merges chunks in order and decodes the result. Where a chunk
// overlaps its predecessor (left stride > 0) the longest run of tokens that
// ends the previous text and starts the new chunk is kept once.
func (v *Vocab) DecodeASR(chunks []backend.Chunk, opts backend.ASRDecodeOptions) (string, error) {
	if opts.TimePrecision <= 0 {
		return "", ErrTimePrecision
	}
	var merged []int
	for _, c := range chunks {
		tokens := v.textTokens(c.Tokens)
		if len(merged) > 0 && c.Stride[1] > 0 {
			tokens = tokens[overlap(merged, tokens):]
		}
		merged = append(merged, tokens...)
	}
	return v.Decode(merged)
}

func (v *Vocab) textTokens(ids []int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if v.special[id] || v.IsTimestamp(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// overlap returns the length of the longest suffix of prev that is also a
// prefix of next.
func overlap(prev, next []int) int {
	n := min(len(prev), len(next))
	for k := n; k > 0; k-- {
		if equal(prev[len(prev)-k:], next[:k]) {
			return k
		}
	}
	return 0
}

func equal(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
