package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/backend/vocab"
	"github.com/kbukum/scribe/pipeline"
)

// ErrNoResult is returned when the step stream ends without a result record.
var ErrNoResult = errors.New("whisper: stream ended without result")

// Transcriber is a loaded sidecar model. Decoding happens locally with the
// vocabulary fetched at load time.
type Transcriber struct {
	*vocab.Vocab
	client        *sidecar
	model         string
	timePrecision float64
}

// TimePrecision implements backend.Transcriber.
func (t *Transcriber) TimePrecision() float64 { return t.timePrecision }

// Ping implements backend.Pinger.
func (t *Transcriber) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	resp, err := t.client.do(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Transcribe uploads audio and relays the step stream to the callbacks.
// Cancelling ctx aborts the request.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, opts backend.TranscribeOptions) (*backend.TranscribeOutput, error) {
	body, contentType, err := t.form(samples, opts)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.do(ctx, http.MethodPost, "/v1/transcribe", contentType, body)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	var (
		out    *backend.TranscribeOutput
		chunks []backend.Chunk
	)
	err = pipeline.ForEach(ctx, backend.NDJSON[stepEvent](resp.Body), func(_ context.Context, ev stepEvent) error {
		switch ev.Type {
		case "token":
			if opts.OnToken != nil {
				return opts.OnToken(ev.Candidates)
			}
		case "chunk":
			if ev.Chunk == nil {
				return fmt.Errorf("chunk record without chunk")
			}
			chunks = append(chunks, *ev.Chunk)
			if opts.OnChunk != nil {
				opts.OnChunk(*ev.Chunk)
			}
		case "result":
			out = &backend.TranscribeOutput{Text: ev.Text, Chunks: chunks}
		case "error":
			return fmt.Errorf("sidecar: %s", ev.Message)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if out == nil {
		return nil, ErrNoResult
	}
	return out, nil
}

func (t *Transcriber) form(samples []float32, opts backend.TranscribeOptions) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("audio", "audio.f32le")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.EncodeF32LE(samples)); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}

	fields := map[string]string{
		"model":             t.model,
		"sample_rate":       strconv.Itoa(audio.SampleRate),
		"do_sample":         strconv.FormatBool(!opts.SamplingDisabled),
		"chunk_length_s":    strconv.FormatFloat(opts.ChunkLength.Seconds(), 'f', -1, 64),
		"stride_length_s":   strconv.FormatFloat(opts.StrideLength.Seconds(), 'f', -1, 64),
		"return_timestamps": strconv.FormatBool(opts.ReturnTimestamps),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
