package protocol

import (
	"encoding/json"
	"testing"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/errors"
)

var (
	th = Header{Pipeline: Transcription, RunID: "run-1"}
	lh = Header{Pipeline: Translation, RunID: "run-2"}
)

func TestStatuses(t *testing.T) {
	tests := []struct {
		env  Envelope
		want Status
	}{
		{Loading{th}, StatusLoading},
		{Download{Header: th, Phase: backend.ProgressInitiate}, StatusInitiate},
		{Download{Header: th, Phase: backend.ProgressUpdate}, StatusProgress},
		{Download{Header: th, Phase: backend.ProgressDone}, StatusDone},
		{Loaded{th}, StatusLoaded},
		{Ready{th}, StatusReady},
		{Partial{Header: th}, StatusPartial},
		{Chunk{Header: th}, StatusChunk},
		{Finished{th}, StatusFinished},
		{Update{Header: lh}, StatusUpdate},
		{Complete{Header: lh}, StatusComplete},
		{Error{Header: lh}, StatusError},
	}
	for _, tc := range tests {
		if got := tc.env.Status(); got != tc.want {
			t.Errorf("%T: got %s, want %s", tc.env, got, tc.want)
		}
	}
}

func TestFromProgress(t *testing.T) {
	d := FromProgress(th, backend.ProgressEvent{File: "a", Status: backend.ProgressInitiate, Progress: 12})
	if d.Progress != 0 || d.File != "a" || d.Head() != th {
		t.Errorf("unexpected download %+v", d)
	}
	d = FromProgress(th, backend.ProgressEvent{File: "a", Status: backend.ProgressUpdate, Progress: 42})
	if d.Progress != 42 {
		t.Errorf("expected 42, got %v", d.Progress)
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(Finished{th}) || !IsTerminal(Complete{Header: lh}) || IsTerminal(Error{Header: th}) {
		t.Error("unexpected terminal classification")
	}
}

func TestEncodeDecodeVariants(t *testing.T) {
	out := &backend.TranslationOutput{TranslationText: "hola", Model: "m"}
	envs := []Envelope{
		Loading{th},
		Download{Header: th, File: "encoder.onnx", Phase: backend.ProgressUpdate, Progress: 55},
		Loaded{th},
		Ready{th},
		Partial{Header: th, Result: Result{Text: "hel"}},
		Chunk{Header: th, Result: Result{Text: "hello"}},
		Finished{th},
		Update{Header: lh, Output: "ho"},
		Complete{Header: lh, Output: out},
		Complete{Header: lh},
		Error{Header: th, Code: "INFERENCE_FAILED", Message: "boom"},
	}
	for _, env := range envs {
		data, err := Encode(env)
		if err != nil {
			t.Fatalf("%T: encode: %v", env, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("%T: decode %s: %v", env, data, err)
		}
		if got.Status() != env.Status() || got.Head() != env.Head() {
			t.Errorf("%T: got %+v", env, got)
		}
		if c, ok := env.(Complete); ok {
			gc := got.(Complete)
			if (c.Output == nil) != (gc.Output == nil) || (c.Output != nil && *gc.Output != *c.Output) {
				t.Errorf("complete output mismatch: %+v", gc.Output)
			}
		}
	}
}

func TestEncodeWireShape(t *testing.T) {
	data, err := Encode(Chunk{Header: th, Result: Result{Text: "hello"}})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	if m["status"] != "CHUNK" || m["pipeline"] != "transcription" || m["run_id"] != "run-1" {
		t.Errorf("unexpected wire %s", data)
	}
	if r, ok := m["result"].(map[string]any); !ok || r["text"] != "hello" {
		t.Errorf("unexpected result %v", m["result"])
	}

	data, _ = Encode(Update{Header: lh, Output: "hola"})
	_ = json.Unmarshal(data, &m)
	if m["output"] != "hola" {
		t.Errorf("update output must be a plain string, got %s", data)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		code errors.ErrorCode
	}{
		{"malformed", `{`, errors.ErrCodeInvalidInput},
		{"unknown status", `{"status":"BOGUS","pipeline":"transcription","run_id":"r"}`, errors.ErrCodeInvalidInput},
		{"missing run", `{"status":"LOADING","pipeline":"transcription"}`, errors.ErrCodeInvalidInput},
		{"bad pipeline", `{"status":"LOADING","pipeline":"vision","run_id":"r"}`, errors.ErrCodeInvalidInput},
		{"progress out of range", `{"status":"progress","pipeline":"transcription","run_id":"r","file":"a","progress":120}`, errors.ErrCodeInvalidInput},
		{"download without file", `{"status":"initiate","pipeline":"transcription","run_id":"r"}`, errors.ErrCodeMissingField},
		{"partial without result", `{"status":"PARTIAL","pipeline":"transcription","run_id":"r"}`, errors.ErrCodeMissingField},
		{"chunk on translation", `{"status":"CHUNK","pipeline":"translation","run_id":"r","result":{"text":"x"}}`, errors.ErrCodeInvalidInput},
		{"update on transcription", `{"status":"update","pipeline":"transcription","run_id":"r","output":"x"}`, errors.ErrCodeInvalidInput},
		{"update with object", `{"status":"update","pipeline":"translation","run_id":"r","output":{}}`, errors.ErrCodeInvalidInput},
		{"error without code", `{"status":"error","pipeline":"translation","run_id":"r"}`, errors.ErrCodeMissingField},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			if !errors.HasCode(err, tc.code) {
				t.Errorf("expected %s, got %v", tc.code, err)
			}
		})
	}
}
