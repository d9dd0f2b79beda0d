// Package whisper implements backend.Transcriber against a speech-recognition
// sidecar that streams newline-delimited JSON.
//
// The sidecar exposes:
//
//	POST /v1/models/load               {"model"} -> NDJSON load progress
//	GET  /v1/models/{model}/tokenizer  -> vocabulary
//	POST /v1/transcribe                multipart audio + options -> NDJSON steps
//	GET  /health
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/backend/vocab"
	"github.com/kbukum/scribe/pipeline"
	"github.com/kbukum/scribe/resilience"
)

const (
	// Name is the registered backend name.
	Name = "whisper"

	defaultURL   = "http://localhost:8387"
	defaultModel = "tiny.en"
	pingTimeout  = 5 * time.Second
)

// Config holds the sidecar address and model.
type Config struct {
	URL   string `json:"url" yaml:"url"`
	Model string `json:"model" yaml:"model"`
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
}

// Factory builds the load function from options "url" and "model".
func Factory() backend.Factory[backend.Transcriber] {
	return func(cfg map[string]any) (backend.LoadFunc[backend.Transcriber], error) {
		c := Config{URL: backend.String(cfg, "url", ""), Model: backend.String(cfg, "model", "")}
		if _, err := url.Parse(c.URL); err != nil {
			return nil, fmt.Errorf("whisper: invalid url: %w", err)
		}
		return Load(c, http.DefaultClient), nil
	}
}

// Load returns a LoadFunc that asks the sidecar to fetch the model, relays
// its download progress and then downloads the tokenizer.
func Load(cfg Config, client *http.Client) backend.LoadFunc[backend.Transcriber] {
	cfg.applyDefaults()
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, progress backend.ProgressFunc) (backend.Transcriber, error) {
		c := &sidecar{base: cfg.URL, hc: client}
		precision, err := c.loadModel(ctx, cfg.Model, progress)
		if err != nil {
			return nil, fmt.Errorf("whisper: load %s: %w", cfg.Model, err)
		}
		v, err := resilience.Retry(ctx, resilience.DefaultPolicy(), func() (*vocab.Vocab, error) {
			return c.tokenizer(ctx, cfg.Model)
		})
		if err != nil {
			return nil, fmt.Errorf("whisper: tokenizer %s: %w", cfg.Model, err)
		}
		return &Transcriber{Vocab: v, client: c, model: cfg.Model, timePrecision: precision}, nil
	}
}

// --- wire types ---

type loadEvent struct {
	Status        string  `json:"status"`
	File          string  `json:"file,omitempty"`
	Progress      float64 `json:"progress,omitempty"`
	TimePrecision float64 `json:"time_precision,omitempty"`
	Message       string  `json:"message,omitempty"`
}

type tokenizerResponse struct {
	Pieces         []string `json:"pieces"`
	SpecialIDs     []int    `json:"special_ids"`
	TimestampBegin int      `json:"timestamp_begin"`
	SpaceMarker    string   `json:"space_marker"`
}

type stepEvent struct {
	Type       string              `json:"type"`
	Candidates []backend.Candidate `json:"candidates,omitempty"`
	Chunk      *backend.Chunk      `json:"chunk,omitempty"`
	Text       string              `json:"text,omitempty"`
	Message    string              `json:"message,omitempty"`
}

// sidecar wraps the HTTP API.
type sidecar struct {
	base string
	hc   *http.Client
}

func (c *sidecar) loadModel(ctx context.Context, model string, progress backend.ProgressFunc) (float64, error) {
	body, _ := json.Marshal(map[string]string{"model": model})
	resp, err := c.do(ctx, http.MethodPost, "/v1/models/load", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}

	var precision float64
	err = pipeline.ForEach(ctx, backend.NDJSON[loadEvent](resp.Body), func(_ context.Context, ev loadEvent) error {
		switch ev.Status {
		case string(backend.ProgressInitiate), string(backend.ProgressUpdate), string(backend.ProgressDone):
			progress(backend.ProgressEvent{File: ev.File, Status: backend.ProgressStatus(ev.Status), Progress: ev.Progress})
		case "ready":
			precision = ev.TimePrecision
		case "error":
			return fmt.Errorf("sidecar: %s", ev.Message)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if precision <= 0 {
		return 0, fmt.Errorf("sidecar did not report ready")
	}
	return precision, nil
}

func (c *sidecar) tokenizer(ctx context.Context, model string) (*vocab.Vocab, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/models/"+url.PathEscape(model)+"/tokenizer", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr tokenizerResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode tokenizer: %w", err)
	}
	if len(tr.Pieces) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	return vocab.New(tr.Pieces,
		vocab.WithSpecial(tr.SpecialIDs...),
		vocab.WithTimestampBegin(tr.TimestampBegin),
		vocab.WithSpaceMarker(tr.SpaceMarker),
	), nil
}

// do sends a request and returns the response when its status is 200. The
// caller closes the body.
func (c *sidecar) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &resilience.StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	return resp, nil
}
