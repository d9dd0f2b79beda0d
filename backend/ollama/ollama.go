// Package ollama implements backend.Translator on top of an Ollama server.
// Loading pulls the model when it is missing and reports each layer as a
// file; translation streams the chat response as incremental output.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/backend/vocab"
	"github.com/kbukum/scribe/languages"
	"github.com/kbukum/scribe/pipeline"
	"github.com/kbukum/scribe/resilience"
)

const (
	// Name is the registered backend name.
	Name = "ollama"

	defaultURL   = "http://localhost:11434"
	defaultModel = "llama3"
	pingTimeout  = 5 * time.Second
)

// Config holds configuration for the Ollama translator.
type Config struct {
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// Factory builds the load function from options "base_url", "model" and
// "temperature".
func Factory() backend.Factory[backend.Translator] {
	return func(cfg map[string]any) (backend.LoadFunc[backend.Translator], error) {
		return Load(Config{
			BaseURL:     backend.String(cfg, "base_url", ""),
			Model:       backend.String(cfg, "model", ""),
			Temperature: backend.Float(cfg, "temperature", 0),
		}, http.DefaultClient), nil
	}
}

// Load returns a LoadFunc that pulls the model unless the server already
// has it.
func Load(cfg Config, client *http.Client) backend.LoadFunc[backend.Translator] {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, progress backend.ProgressFunc) (backend.Translator, error) {
		t := &Translator{cfg: cfg, client: client, vocab: vocab.New(nil)}
		present, err := resilience.Retry(ctx, resilience.DefaultPolicy(), func() (bool, error) {
			return t.hasModel(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("ollama: list models: %w", err)
		}
		if !present {
			if err := t.pull(ctx, progress); err != nil {
				return nil, fmt.Errorf("ollama: pull %s: %w", cfg.Model, err)
			}
		}
		return t, nil
	}
}

// Translator translates through /api/chat. Streamed fragments are interned
// in a growing vocabulary so candidates carry ids like any other backend.
type Translator struct {
	cfg    Config
	client *http.Client
	vocab  *vocab.Vocab
}

// Decode implements backend.Decoder.
func (t *Translator) Decode(ids []int) (string, error) { return t.vocab.Decode(ids) }

// Ping implements backend.Pinger.
func (t *Translator) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := t.hasModel(ctx)
	return err
}

// --- internal Ollama API types ---

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type pullEvent struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatEvent struct {
	Model     string      `json:"model"`
	Message   chatMessage `json:"message"`
	Done      bool        `json:"done"`
	EvalCount int         `json:"eval_count,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func (t *Translator) hasModel(ctx context.Context) (bool, error) {
	resp, err := t.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false, fmt.Errorf("decode tags: %w", err)
	}
	for _, m := range tags.Models {
		for _, name := range []string{m.Name, m.Model} {
			if name == t.cfg.Model || name == t.cfg.Model+":latest" {
				return true, nil
			}
		}
	}
	return false, nil
}

// pull maps each layer digest to a file: initiate when first seen, progress
// as bytes arrive and done once complete.
func (t *Translator) pull(ctx context.Context, progress backend.ProgressFunc) error {
	resp, err := t.do(ctx, http.MethodPost, "/api/pull", map[string]any{"model": t.cfg.Model, "stream": true})
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	finished := make(map[string]bool)
	success := false
	err = pipeline.ForEach(ctx, backend.NDJSON[pullEvent](resp.Body), func(_ context.Context, ev pullEvent) error {
		if ev.Error != "" {
			return fmt.Errorf("server: %s", ev.Error)
		}
		if ev.Status == "success" {
			success = true
			return nil
		}
		if ev.Digest == "" || finished[ev.Digest] {
			return nil
		}
		if !seen[ev.Digest] {
			seen[ev.Digest] = true
			progress(backend.ProgressEvent{File: ev.Digest, Status: backend.ProgressInitiate})
		}
		if ev.Total <= 0 {
			return nil
		}
		pct := float64(ev.Completed) / float64(ev.Total) * 100
		progress(backend.ProgressEvent{File: ev.Digest, Status: backend.ProgressUpdate, Progress: pct})
		if ev.Completed >= ev.Total {
			finished[ev.Digest] = true
			progress(backend.ProgressEvent{File: ev.Digest, Status: backend.ProgressDone, Progress: 100})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("pull stream ended before success")
	}
	return nil
}

// Translate implements backend.Translator.
func (t *Translator) Translate(ctx context.Context, text string, opts backend.TranslateOptions) (*backend.TranslationOutput, error) {
	req := chatRequest{
		Model: t.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(opts.SourceLanguage, opts.TargetLanguage)},
			{Role: "user", Content: text},
		},
		Stream:  true,
		Options: map[string]any{"temperature": t.cfg.Temperature},
	}
	resp, err := t.do(ctx, http.MethodPost, "/api/chat", req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	var (
		ids   []int
		evals int
		done  bool
	)
	err = pipeline.ForEach(ctx, backend.NDJSON[chatEvent](resp.Body), func(_ context.Context, ev chatEvent) error {
		if ev.Error != "" {
			return fmt.Errorf("server: %s", ev.Error)
		}
		if ev.Message.Content != "" {
			ids = append(ids, t.vocab.Intern(ev.Message.Content))
			if opts.OnIncrementalOutput != nil {
				candidate := backend.Candidate{Tokens: append([]int(nil), ids...)}
				if err := opts.OnIncrementalOutput([]backend.Candidate{candidate}); err != nil {
					return err
				}
			}
		}
		if ev.Done {
			done, evals = true, ev.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if !done {
		return nil, fmt.Errorf("ollama: chat stream ended before done")
	}

	final, err := t.vocab.Decode(ids)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	return &backend.TranslationOutput{
		TranslationText: strings.TrimSpace(final),
		Model:           t.cfg.Model,
		SourceLanguage:  opts.SourceLanguage,
		TargetLanguage:  opts.TargetLanguage,
		Tokens:          evals,
	}, nil
}

func systemPrompt(source, target string) string {
	return fmt.Sprintf("Translate the user's text from %s to %s. Reply with the translation only, without notes or quotes.",
		languages.Name(source), languages.Name(target))
}

func (t *Translator) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &resilience.StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	return resp, nil
}
