package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/scribe/languages"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/pipeline"
	"github.com/kbukum/scribe/protocol"
	"github.com/kbukum/scribe/sse"
	"github.com/kbukum/scribe/transcription"
	"github.com/kbukum/scribe/translation"
	"github.com/kbukum/scribe/worker"
)

// EventSnapshot names the SSE event carrying a Snapshot.
const EventSnapshot = "snapshot"

type transcribeRequest struct {
	hdr   protocol.Header
	audio []float32
}

type translateRequest struct {
	hdr protocol.Header
	req translation.Request
}

// Session is one user's transcription and translation workspace. All
// methods are safe for concurrent use.
type Session struct {
	id             string
	sourceLanguage string
	log            *logger.Logger

	transcriber *worker.Worker[transcribeRequest]
	translator  *worker.Worker[translateRequest]
	pumps       sync.WaitGroup

	mu                    sync.Mutex
	tab                   Tab
	active                bool
	targetLanguage        string
	transcript            TranscriptState
	transcriptionProgress DownloadProgress
	transcriptionFlags    TranscriptionFlags
	transcriptionRun      string
	transcriptionErr      string
	translation           TranslationState
	translationProgress   DownloadProgress
	translationFlags      TranslationFlags
	translationRun        string
	translationErr        string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSourceLanguage sets the language transcripts are translated from.
func WithSourceLanguage(code string) SessionOption {
	return func(s *Session) {
		if code != "" {
			s.sourceLanguage = code
		}
	}
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *logger.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// NewSession creates a session running its pipelines on tc and tl.
func NewSession(id string, tc *transcription.Controller, tl *translation.Controller, opts ...SessionOption) *Session {
	s := &Session{id: id, sourceLanguage: languages.DefaultSource, tab: TabTranscription}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.WithComponent("session")
	}
	s.log = s.log.WithFields(logger.Fields(logger.FieldSessionID, id))

	s.transcriber = worker.New(string(protocol.Transcription), func(r transcribeRequest) (worker.Job, error) {
		return tc.Admit(r.audio, r.hdr)
	}, worker.WithLogger(s.log))
	s.translator = worker.New(string(protocol.Translation), func(r translateRequest) (worker.Job, error) {
		return tl.Admit(r.req, r.hdr)
	}, worker.WithLogger(s.log))
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Transcribe starts a transcription of audio. The previous transcript is
// cleared only once the run has been admitted.
func (s *Session) Transcribe(ctx context.Context, audio []float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()
	hdr := protocol.Header{Pipeline: protocol.Transcription, RunID: runID}
	if err := s.transcriber.Submit(ctx, transcribeRequest{hdr: hdr, audio: audio}); err != nil {
		return "", err
	}
	s.transcriptionRun = runID
	s.transcript = TranscriptState{}
	s.transcriptionProgress.Reset()
	s.transcriptionFlags = TranscriptionFlags{}
	s.transcriptionErr = ""
	s.active = true
	s.log.WithRun(string(protocol.Transcription), runID).Info("transcription submitted",
		logger.Fields("samples", len(audio)))
	return runID, nil
}

// RequestTranslation translates the displayed transcript into target. It
// returns an empty run id and no error when there is nothing to do: no
// target selected, no transcript yet, or a translation already running.
func (s *Session) RequestTranslation(ctx context.Context, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.transcript.Displayed()
	if !languages.IsSelected(target) || text == "" || s.translationFlags.Translating || s.translationFlags.Loading {
		return "", nil
	}

	runID := uuid.NewString()
	hdr := protocol.Header{Pipeline: protocol.Translation, RunID: runID}
	req := translation.Request{Text: text, SourceLanguage: s.sourceLanguage, TargetLanguage: target}
	if err := s.translator.Submit(ctx, translateRequest{hdr: hdr, req: req}); err != nil {
		return "", err
	}
	s.translationRun = runID
	s.targetLanguage = target
	s.translation = TranslationState{}
	s.translationProgress.Reset()
	s.translationFlags = TranslationFlags{}
	s.translationErr = ""
	s.log.WithRun(string(protocol.Translation), runID).Info("translation submitted",
		logger.Fields("target_language", target))
	return runID, nil
}

// Apply folds env into the session state. It reports false for envelopes
// of runs the session no longer tracks.
func (s *Session) Apply(env protocol.Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := env.Head()
	switch h.Pipeline {
	case protocol.Transcription:
		if h.RunID == "" || h.RunID != s.transcriptionRun {
			return false
		}
		s.applyTranscription(env)
	case protocol.Translation:
		if h.RunID == "" || h.RunID != s.translationRun {
			return false
		}
		s.applyTranslation(env)
	default:
		return false
	}
	return true
}

func (s *Session) applyTranscription(env protocol.Envelope) {
	switch e := env.(type) {
	case protocol.Loading:
		s.transcriptionFlags.Loading = true
		s.active = true
	case protocol.Download:
		s.transcriptionFlags.Loading = true
		s.transcriptionProgress.Apply(e)
	case protocol.Loaded:
	case protocol.Ready:
		s.transcriptionFlags.Loading = false
		s.transcriptionFlags.Transcribing = true
	case protocol.Partial:
		s.transcript.Partial = e.Result.Text
	case protocol.Chunk:
		s.transcript.Finalized = e.Result.Text
		s.transcript.Partial = ""
	case protocol.Error:
		s.transcriptionFlags.Failed = true
		s.transcriptionErr = e.Message
	case protocol.Finished:
		s.transcriptionFlags.Loading = false
		s.transcriptionFlags.Transcribing = false
	}
}

func (s *Session) applyTranslation(env protocol.Envelope) {
	switch e := env.(type) {
	case protocol.Loading:
		s.translationFlags.Loading = true
	case protocol.Download:
		s.translationFlags.Loading = true
		s.translationProgress.Apply(e)
	case protocol.Loaded:
		s.translationFlags.Loading = false
		s.translationFlags.Translating = true
	case protocol.Update:
		text := e.Output
		s.translation.Text = &text
	case protocol.Error:
		s.translationFlags.Failed = true
		s.translationErr = e.Message
	case protocol.Complete:
		s.translationFlags.Loading = false
		s.translationFlags.Translating = false
		if e.Output != nil {
			text := e.Output.TranslationText
			s.translation.Text = &text
			s.translation.Output = e.Output
		}
	}
}

// DisplayedTranscript returns finalized plus partial text.
func (s *Session) DisplayedTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Displayed()
}

// DisplayedTranslation returns the translation while one is running or
// once one exists, and the live transcript otherwise.
func (s *Session) DisplayedTranslation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayedTranslation()
}

func (s *Session) displayedTranslation() string {
	if s.translationFlags.Translating || s.translation.Text != nil {
		if s.translation.Text == nil {
			return ""
		}
		return *s.translation.Text
	}
	return s.transcript.Displayed()
}

// TranscriptionProgress returns the aggregate transcription model download
// percentage.
func (s *Session) TranscriptionProgress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptionProgress.Aggregate()
}

// TranslationProgress returns the aggregate translation model download
// percentage.
func (s *Session) TranslationProgress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.translationProgress.Aggregate()
}

// SetTab selects the visible tab.
func (s *Session) SetTab(t Tab) error {
	if !t.Valid() {
		return fmt.Errorf("unknown tab %q", t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tab = t
	return nil
}

// Reset abandons in-flight runs and clears all state. Events of the
// abandoned runs are dropped when they arrive.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriptionRun, s.translationRun = "", ""
	s.transcript = TranscriptState{}
	s.translation = TranslationState{}
	s.transcriptionProgress.Reset()
	s.translationProgress.Reset()
	s.transcriptionFlags = TranscriptionFlags{}
	s.translationFlags = TranslationFlags{}
	s.transcriptionErr, s.translationErr = "", ""
	s.targetLanguage = ""
	s.active = false
	s.tab = TabTranscription
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID: s.id,
		Tab:       s.tab,
		Active:    s.active,
		Transcription: TranscriptionView{
			TranscriptionFlags: s.transcriptionFlags,
			RunID:              s.transcriptionRun,
			Text:               s.transcript.Displayed(),
			Finalized:          s.transcript.Finalized,
			Partial:            s.transcript.Partial,
			Progress:           s.transcriptionProgress.Aggregate(),
			Files:              s.transcriptionProgress.Files(),
			Error:              s.transcriptionErr,
		},
		Translation: TranslationView{
			TranslationFlags: s.translationFlags,
			RunID:            s.translationRun,
			SourceLanguage:   s.sourceLanguage,
			TargetLanguage:   s.targetLanguage,
			Text:             s.displayedTranslation(),
			Output:           s.translation.Output,
			Progress:         s.translationProgress.Aggregate(),
			Files:            s.translationProgress.Files(),
			Error:            s.translationErr,
		},
	}
}

// Topic returns the SSE publish pattern matching every client of the
// session.
func (s *Session) Topic() string { return "session:" + s.id + ":*" }

// Start pumps both workers' events into the session state and on to pub.
func (s *Session) Start(ctx context.Context, pub sse.Publisher) {
	for _, events := range []<-chan protocol.Envelope{s.transcriber.Events(), s.translator.Events()} {
		s.pumps.Add(1)
		go func() {
			defer s.pumps.Done()
			if err := s.pump(ctx, events, pub); err != nil {
				s.log.Warn("event pump stopped", logger.ErrorFields("pump", err))
			}
		}()
	}
}

// Close stops both workers, cancelling their runs, and waits for the pumps
// to drain.
func (s *Session) Close() {
	s.transcriber.Stop()
	s.translator.Stop()
	s.pumps.Wait()
}

func (s *Session) pump(ctx context.Context, events <-chan protocol.Envelope, pub sse.Publisher) error {
	applied := pipeline.Filter(pipeline.FromChannel(events), s.Apply)
	traced := pipeline.Tap(applied, func(_ context.Context, env protocol.Envelope) error {
		h := env.Head()
		s.log.WithRun(string(h.Pipeline), h.RunID).Debug("envelope applied",
			logger.Fields(logger.FieldStatus, string(env.Status())))
		return nil
	})
	frames := pipeline.Map(traced, s.frames)
	return pipeline.Drain(frames, func(_ context.Context, evs []sse.Event) error {
		for _, ev := range evs {
			pub.Publish(s.Topic(), ev)
		}
		return nil
	}).Run(ctx)
}

// frames renders env and the snapshot that follows it as SSE events.
func (s *Session) frames(_ context.Context, env protocol.Envelope) ([]sse.Event, error) {
	data, err := protocol.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Status(), err)
	}
	snap, err := json.Marshal(s.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return []sse.Event{
		{Name: string(env.Status()), Data: data},
		{Name: EventSnapshot, Data: snap},
	}, nil
}
