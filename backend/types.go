package backend

import (
	"context"
	"time"
)

// ProgressStatus is the phase of one file download reported during a load.
type ProgressStatus string

const (
	ProgressInitiate ProgressStatus = "initiate"
	ProgressUpdate   ProgressStatus = "progress"
	ProgressDone     ProgressStatus = "done"
)

// ProgressEvent reports download progress for a single model file.
// Progress is a percentage in [0, 100].
type ProgressEvent struct {
	File     string         `json:"file"`
	Status   ProgressStatus `json:"status"`
	Progress float64        `json:"progress"`
}

// ProgressFunc receives load progress. It may be called any number of times
// before the load resolves.
type ProgressFunc func(ProgressEvent)

// LoadFunc instantiates a backend, reporting file downloads to progress.
type LoadFunc[T any] func(ctx context.Context, progress ProgressFunc) (T, error)

// Candidate is one ranked output hypothesis for the current generation step.
// Tokens holds every token id generated so far for the current chunk.
type Candidate struct {
	Tokens []int `json:"tokens"`
}

// Chunk is the backend's record of one finished audio segment. Callers treat
// it as opaque and only hand it back to DecodeASR, in arrival order.
type Chunk struct {
	Tokens []int `json:"tokens"`
	// Stride is the chunk length and its left and right overlap, in samples.
	Stride [3]int `json:"stride"`
	IsLast bool   `json:"is_last,omitempty"`
}

// Decoder turns a token id sequence into text, skipping special and
// timestamp tokens.
type Decoder interface {
	Decode(ids []int) (string, error)
}

// ASRDecodeOptions carries the context DecodeASR needs to merge chunk
// boundaries.
type ASRDecodeOptions struct {
	// TimePrecision is the duration in seconds of one timestamp token.
	TimePrecision float64
	Stride        time.Duration
}

// ASRDecoder merges an ordered sequence of chunks into cumulative text.
type ASRDecoder interface {
	DecodeASR(chunks []Chunk, opts ASRDecodeOptions) (string, error)
}

// TranscribeOptions configures one transcription run.
type TranscribeOptions struct {
	// SamplingDisabled selects greedy decoding.
	SamplingDisabled bool
	ChunkLength      time.Duration
	StrideLength     time.Duration
	ReturnTimestamps bool

	// OnToken is called once per generation step with at least one
	// candidate. A non-nil error aborts the run.
	OnToken func(candidates []Candidate) error
	// OnChunk is called when a chunk boundary is crossed.
	OnChunk func(chunk Chunk)
}

// TranscribeOutput is the backend's final result for a run.
type TranscribeOutput struct {
	Text   string  `json:"text"`
	Chunks []Chunk `json:"chunks,omitempty"`
}

// Transcriber is a loaded speech-recognition backend.
type Transcriber interface {
	Decoder
	ASRDecoder
	// TimePrecision is the duration in seconds of one timestamp token.
	TimePrecision() float64
	Transcribe(ctx context.Context, audio []float32, opts TranscribeOptions) (*TranscribeOutput, error)
}

// TranslateOptions configures one translation run.
type TranslateOptions struct {
	SourceLanguage string
	TargetLanguage string
	// OnIncrementalOutput is called once per generation step with the
	// candidates decoded so far. A non-nil error aborts the run.
	OnIncrementalOutput func(candidates []Candidate) error
}

// TranslationOutput is the backend-native final translation result.
type TranslationOutput struct {
	TranslationText string `json:"translation_text"`
	Model           string `json:"model,omitempty"`
	SourceLanguage  string `json:"source_language,omitempty"`
	TargetLanguage  string `json:"target_language,omitempty"`
	Tokens          int    `json:"tokens,omitempty"`
}

// Translator is a loaded text-to-text translation backend.
type Translator interface {
	Decoder
	Translate(ctx context.Context, text string, opts TranslateOptions) (*TranslationOutput, error)
}

// Pinger is implemented by backends that can report reachability without
// loading a model.
type Pinger interface {
	Ping(ctx context.Context) error
}
