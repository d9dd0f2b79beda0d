package protocol

import "github.com/kbukum/scribe/backend"

// Status is the wire tag of an envelope.
type Status string

const (
	StatusLoading  Status = "LOADING"
	StatusInitiate Status = "initiate"
	StatusProgress Status = "progress"
	StatusDone     Status = "done"
	StatusLoaded   Status = "LOADED"
	StatusReady    Status = "ready"
	StatusPartial  Status = "PARTIAL"
	StatusChunk    Status = "CHUNK"
	StatusFinished Status = "FINISHED"
	StatusUpdate   Status = "update"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Pipeline names the pipeline an envelope belongs to.
type Pipeline string

const (
	Transcription Pipeline = "transcription"
	Translation   Pipeline = "translation"
)

// Header identifies the run an envelope belongs to.
type Header struct {
	Pipeline Pipeline
	RunID    string
}

// Envelope is implemented only by the variants in this package.
type Envelope interface {
	Status() Status
	Head() Header
	envelope()
}

// Emit delivers an envelope to the controlling side.
type Emit func(Envelope)

// Result is the text payload of Partial and Chunk.
type Result struct {
	Text string `json:"text"`
}

// Loading reports that model instantiation has begun.
type Loading struct{ Header }

// Download reports progress of one model file.
type Download struct {
	Header
	File     string
	Phase    backend.ProgressStatus
	Progress float64
}

// Loaded reports that model instantiation finished.
type Loaded struct{ Header }

// Ready reports that the transcription backend can start the run.
type Ready struct{ Header }

// Partial carries the in-flight text of the current chunk.
type Partial struct {
	Header
	Result Result
}

// Chunk carries the cumulative finalized text through the latest chunk.
type Chunk struct {
	Header
	Result Result
}

// Finished ends a transcription run.
type Finished struct{ Header }

// Update carries the cumulative translation so far.
type Update struct {
	Header
	Output string
}

// Complete ends a translation run. Output is nil when the run failed.
type Complete struct {
	Header
	Output *backend.TranslationOutput
}

// Error reports a failed run. It precedes the run's terminal envelope.
type Error struct {
	Header
	Code    string
	Message string
}

func (h Header) Head() Header { return h }

func (Loading) Status() Status  { return StatusLoading }
func (Loaded) Status() Status   { return StatusLoaded }
func (Ready) Status() Status    { return StatusReady }
func (Partial) Status() Status  { return StatusPartial }
func (Chunk) Status() Status    { return StatusChunk }
func (Finished) Status() Status { return StatusFinished }
func (Update) Status() Status   { return StatusUpdate }
func (Complete) Status() Status { return StatusComplete }
func (Error) Status() Status    { return StatusError }

func (d Download) Status() Status {
	switch d.Phase {
	case backend.ProgressInitiate:
		return StatusInitiate
	case backend.ProgressDone:
		return StatusDone
	default:
		return StatusProgress
	}
}

func (Loading) envelope()  {}
func (Download) envelope() {}
func (Loaded) envelope()   {}
func (Ready) envelope()    {}
func (Partial) envelope()  {}
func (Chunk) envelope()    {}
func (Finished) envelope() {}
func (Update) envelope()   {}
func (Complete) envelope() {}
func (Error) envelope()    {}

// FromProgress converts a backend progress event into a Download envelope.
// Initiate always reports 0.
func FromProgress(h Header, ev backend.ProgressEvent) Download {
	d := Download{Header: h, File: ev.File, Phase: ev.Status, Progress: ev.Progress}
	if ev.Status == backend.ProgressInitiate {
		d.Progress = 0
	}
	return d
}

// IsTerminal reports whether env ends its run.
func IsTerminal(env Envelope) bool {
	switch env.(type) {
	case Finished, Complete:
		return true
	}
	return false
}
