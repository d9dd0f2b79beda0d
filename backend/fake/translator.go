package fake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/backend/vocab"
)

// RenderFunc produces the scripted translation of text.
type RenderFunc func(text, source, target string) string

// Tagged renders "[target] text", enough for demos to show which language
// was asked for.
func Tagged(text, _, target string) string {
	return "[" + target + "] " + text
}

// Translator streams the rendered translation one word per step.
type Translator struct {
	vocab     *vocab.Vocab
	render    RenderFunc
	err       error
	stepDelay time.Duration
	gate      <-chan struct{}
	pingErr   error
}

// TranslatorOption configures a Translator.
type TranslatorOption func(*Translator)

// TranslateFailWith makes Translate return err after streaming.
func TranslateFailWith(err error) TranslatorOption {
	return func(t *Translator) { t.err = err }
}

// WithTranslateDelay sleeps between steps.
func WithTranslateDelay(d time.Duration) TranslatorOption {
	return func(t *Translator) { t.stepDelay = d }
}

// WithTranslateGate blocks each translation before its first step until
// gate is closed.
func WithTranslateGate(gate <-chan struct{}) TranslatorOption {
	return func(t *Translator) { t.gate = gate }
}

// PingFailWith makes Ping report err.
func PingFailWith(err error) TranslatorOption {
	return func(t *Translator) { t.pingErr = err }
}

// NewTranslator creates a Translator. A nil render uses Tagged.
func NewTranslator(render RenderFunc, opts ...TranslatorOption) *Translator {
	if render == nil {
		render = Tagged
	}
	t := &Translator{vocab: vocab.New(nil), render: render}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Decode implements backend.Decoder.
func (t *Translator) Decode(ids []int) (string, error) { return t.vocab.Decode(ids) }

// Ping implements backend.Pinger.
func (t *Translator) Ping(context.Context) error { return t.pingErr }

// Translate implements backend.Translator.
func (t *Translator) Translate(ctx context.Context, text string, opts backend.TranslateOptions) (*backend.TranslationOutput, error) {
	if t.gate != nil {
		select {
		case <-t.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := t.render(text, opts.SourceLanguage, opts.TargetLanguage)

	var ids []int
	for i, w := range strings.Fields(out) {
		if t.stepDelay > 0 {
			select {
			case <-time.After(t.stepDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			w = " " + w
		}
		ids = append(ids, t.vocab.Intern(w))
		if opts.OnIncrementalOutput != nil {
			if err := opts.OnIncrementalOutput([]backend.Candidate{{Tokens: append([]int(nil), ids...)}}); err != nil {
				return nil, fmt.Errorf("output callback: %w", err)
			}
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	final, _ := t.vocab.Decode(ids)
	return &backend.TranslationOutput{
		TranslationText: final,
		Model:           "fake",
		SourceLanguage:  opts.SourceLanguage,
		TargetLanguage:  opts.TargetLanguage,
		Tokens:          len(ids),
	}, nil
}
