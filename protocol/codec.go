package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/validation"
)

// wire is the JSON form shared by every variant.
type wire struct {
	Status   Status          `json:"status" validate:"required,oneof=LOADING initiate progress done LOADED ready PARTIAL CHUNK FINISHED update complete error"`
	Pipeline Pipeline        `json:"pipeline" validate:"required,oneof=transcription translation"`
	RunID    string          `json:"run_id" validate:"required"`
	File     string          `json:"file,omitempty"`
	Progress *float64        `json:"progress,omitempty" validate:"omitempty,gte=0,lte=100"`
	Result   *Result         `json:"result,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// transcriptionOnly and translationOnly list statuses bound to one pipeline.
var (
	transcriptionOnly = map[Status]bool{StatusReady: true, StatusPartial: true, StatusChunk: true, StatusFinished: true}
	translationOnly   = map[Status]bool{StatusUpdate: true, StatusComplete: true}
)

// Encode serializes env.
func Encode(env Envelope) ([]byte, error) {
	h := env.Head()
	w := wire{Status: env.Status(), Pipeline: h.Pipeline, RunID: h.RunID}

	switch e := env.(type) {
	case Download:
		p := e.Progress
		w.File, w.Progress = e.File, &p
	case Partial:
		w.Result = &e.Result
	case Chunk:
		w.Result = &e.Result
	case Update:
		w.Output, _ = json.Marshal(e.Output)
	case Complete:
		out, err := json.Marshal(e.Output)
		if err != nil {
			return nil, fmt.Errorf("encode output: %w", err)
		}
		w.Output = out
	case Error:
		w.Code, w.Message = e.Code, e.Message
	}
	return json.Marshal(w)
}

// Decode parses and validates one envelope.
func Decode(data []byte) (Envelope, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Validation("malformed envelope").WithCause(err)
	}
	if err := validation.Validate(&w); err != nil {
		return nil, err
	}
	if transcriptionOnly[w.Status] && w.Pipeline != Transcription {
		return nil, errors.Validation(fmt.Sprintf("status %s is only valid for the transcription pipeline", w.Status))
	}
	if translationOnly[w.Status] && w.Pipeline != Translation {
		return nil, errors.Validation(fmt.Sprintf("status %s is only valid for the translation pipeline", w.Status))
	}

	h := Header{Pipeline: w.Pipeline, RunID: w.RunID}
	switch w.Status {
	case StatusLoading:
		return Loading{h}, nil
	case StatusInitiate, StatusProgress, StatusDone:
		if w.File == "" {
			return nil, errors.MissingField("file")
		}
		d := Download{Header: h, File: w.File, Phase: backend.ProgressStatus(w.Status)}
		if w.Progress != nil {
			d.Progress = *w.Progress
		}
		return d, nil
	case StatusLoaded:
		return Loaded{h}, nil
	case StatusReady:
		return Ready{h}, nil
	case StatusPartial, StatusChunk:
		if w.Result == nil {
			return nil, errors.MissingField("result")
		}
		if w.Status == StatusPartial {
			return Partial{Header: h, Result: *w.Result}, nil
		}
		return Chunk{Header: h, Result: *w.Result}, nil
	case StatusFinished:
		return Finished{h}, nil
	case StatusUpdate:
		var out string
		if err := json.Unmarshal(w.Output, &out); err != nil {
			return nil, errors.InvalidInput("output", "must be a string").WithCause(err)
		}
		return Update{Header: h, Output: out}, nil
	case StatusComplete:
		c := Complete{Header: h}
		if len(w.Output) > 0 && string(w.Output) != "null" {
			c.Output = &backend.TranslationOutput{}
			if err := json.Unmarshal(w.Output, c.Output); err != nil {
				return nil, errors.InvalidInput("output", "must be a translation result").WithCause(err)
			}
		}
		return c, nil
	case StatusError:
		if w.Code == "" {
			return nil, errors.MissingField("code")
		}
		return Error{Header: h, Code: w.Code, Message: w.Message}, nil
	}
	return nil, errors.Validation(fmt.Sprintf("unknown status %q", w.Status))
}
