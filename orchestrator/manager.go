package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/component"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/sse"
	"github.com/kbukum/scribe/transcription"
	"github.com/kbukum/scribe/translation"
)

// Manager owns every live session. Sessions share the process-wide
// loaders, so a model is loaded at most once per pipeline.
type Manager struct {
	transcriber *backend.Loader[backend.Transcriber]
	translator  *backend.Loader[backend.Translator]
	pub         sse.Publisher
	stride      time.Duration
	source      string
	log         *logger.Logger
	metrics     *observability.InferenceMetrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

var (
	_ component.Component   = (*Manager)(nil)
	_ component.Describable = (*Manager)(nil)
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStride sets the transcription chunk overlap for new sessions.
func WithStride(d time.Duration) ManagerOption {
	return func(m *Manager) { m.stride = d }
}

// WithTranslationSource sets the source language for new sessions.
func WithTranslationSource(code string) ManagerOption {
	return func(m *Manager) { m.source = code }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithMetrics records inference metrics for every session.
func WithMetrics(im *observability.InferenceMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = im }
}

// NewManager creates a Manager publishing session events to pub.
func NewManager(transcriber *backend.Loader[backend.Transcriber], translator *backend.Loader[backend.Translator], pub sse.Publisher, opts ...ManagerOption) *Manager {
	m := &Manager{
		transcriber: transcriber,
		translator:  translator,
		pub:         pub,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.WithComponent("sessions")
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	tc := transcription.NewController(m.transcriber,
		transcription.WithStride(m.stride),
		transcription.WithLogger(m.log.WithComponent("transcription")),
		transcription.WithMetrics(m.metrics),
	)
	tl := translation.NewController(m.translator,
		translation.WithLogger(m.log.WithComponent("translation")),
		translation.WithMetrics(m.metrics),
	)
	s := NewSession(id, tc, tl, WithSourceLanguage(m.source), WithSessionLogger(m.log))
	s.Start(m.ctx, m.pub)

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.log.Info("session created", logger.Fields(logger.FieldSessionID, id, "sessions", n))
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NotFound("session", id)
	}
	return s, nil
}

// Close stops the session with id and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return errors.NotFound("session", id)
	}
	s.Close()
	m.log.Info("session closed", logger.Fields(logger.FieldSessionID, id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) Name() string { return "sessions" }

func (m *Manager) Start(_ context.Context) error { return nil }

// Stop closes every session.
func (m *Manager) Stop(_ context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.cancel()
	return nil
}

// Health pings the loaded backends. An unreachable backend degrades the
// service; sessions can still be created and runs report the failure.
func (m *Manager) Health(ctx context.Context) component.Health {
	h := component.Health{
		Name:   m.Name(),
		Status: component.StatusHealthy,
		Message: fmt.Sprintf("%d sessions, transcriber loaded=%t, translator loaded=%t",
			m.Len(), m.transcriber.Loaded(), m.translator.Loaded()),
	}
	for _, p := range []struct {
		name string
		ping func(context.Context) (bool, error)
	}{
		{m.transcriber.Name(), m.transcriber.Ping},
		{m.translator.Name(), m.translator.Ping},
	} {
		if _, err := p.ping(ctx); err != nil {
			h.Status = component.StatusDegraded
			h.Message += fmt.Sprintf("; %s backend unreachable: %v", p.name, err)
		}
	}
	return h
}

func (m *Manager) Describe() component.Description {
	return component.Description{
		Name:    "Session Manager",
		Type:    "sessions",
		Details: fmt.Sprintf("%d sessions", m.Len()),
	}
}
