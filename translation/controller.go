package translation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/scribe/backend"
	apperrors "github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/languages"
	"github.com/kbukum/scribe/lifecycle"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/protocol"
	"github.com/kbukum/scribe/validation"
	"github.com/kbukum/scribe/worker"
)

const pipelineName = string(protocol.Translation)

// Request is one translation.
type Request struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language" validate:"required,langcode"`
	TargetLanguage string `json:"target_language" validate:"required,langcode"`
}

// Validate checks that req names a real target language and carries text.
func (r Request) Validate() error {
	if !languages.IsSelected(r.TargetLanguage) {
		return apperrors.NoTargetLanguage()
	}
	if strings.TrimSpace(r.Text) == "" {
		return apperrors.NoSourceText()
	}
	return validation.Validate(r)
}

// Controller runs translations for one session, one at a time.
type Controller struct {
	loader  *backend.Loader[backend.Translator]
	machine *lifecycle.Machine
	log     *logger.Logger
	metrics *observability.InferenceMetrics

	mu    sync.Mutex
	model backend.Translator
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics records runs on m.
func WithMetrics(m *observability.InferenceMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a Controller backed by the shared loader.
func NewController(loader *backend.Loader[backend.Translator], opts ...Option) *Controller {
	c := &Controller{loader: loader, machine: lifecycle.New(pipelineName)}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.WithComponent("translation")
	}
	return c
}

// Phase returns the controller's lifecycle phase.
func (c *Controller) Phase() lifecycle.Phase { return c.machine.Phase() }

// EnsureLoaded loads the backend if needed. It emits LOADING, the download
// progress and LOADED, in that order.
func (c *Controller) EnsureLoaded(ctx context.Context, hdr protocol.Header, emit protocol.Emit) error {
	emit(protocol.Loading{Header: hdr})
	c.machine.StartLoad()

	model, err := c.loader.Get(ctx, func(ev backend.ProgressEvent) {
		emit(protocol.FromProgress(hdr, ev))
	})
	if err != nil {
		c.machine.LoadFailed()
		c.log.WithRun(pipelineName, hdr.RunID).Error("backend load failed", logger.ErrorFields("load", err))
		return apperrors.BackendUnavailable(pipelineName, err)
	}

	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
	c.machine.LoadSucceeded()

	emit(protocol.Loaded{Header: hdr})
	return nil
}

// Run translates req on the loaded backend. Invalid requests and busy or
// unloaded controllers are rejected without emitting anything.
func (c *Controller) Run(ctx context.Context, req Request, hdr protocol.Header, emit protocol.Emit) error {
	if err := req.Validate(); err != nil {
		c.reject(ctx, err)
		return err
	}
	t, err := c.machine.Acquire()
	if err != nil {
		c.reject(ctx, err)
		return err
	}
	defer c.machine.Release(t)
	return c.run(ctx, t, req, hdr, emit)
}

// Admit validates req, reserves the controller and returns a job that
// loads the backend and runs the translation.
func (c *Controller) Admit(req Request, hdr protocol.Header) (worker.Job, error) {
	if err := req.Validate(); err != nil {
		c.reject(context.Background(), err)
		return nil, err
	}
	t, err := c.machine.Acquire()
	if err != nil {
		c.reject(context.Background(), err)
		return nil, err
	}
	return func(ctx context.Context, emit protocol.Emit) error {
		defer c.machine.Release(t)
		if err := c.EnsureLoaded(ctx, hdr, emit); err != nil {
			c.machine.Release(t)
			emitError(emit, hdr, err)
			emit(protocol.Complete{Header: hdr})
			return err
		}
		return c.run(ctx, t, req, hdr, emit)
	}, nil
}

func (c *Controller) run(ctx context.Context, t lifecycle.Ticket, req Request, hdr protocol.Header, emit protocol.Emit) error {
	if err := c.machine.BeginRun(t); err != nil {
		c.reject(ctx, err)
		return err
	}
	c.mu.Lock()
	model := c.model
	c.mu.Unlock()

	ctx = logger.ContextWithRunID(ctx, hdr.RunID)
	ctx, span := observability.StartSpan(ctx, observability.SpanTranslationRun)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrRunID, hdr.RunID)
	observability.SetSpanAttribute(ctx, observability.AttrPipeline, pipelineName)
	observability.SetSpanAttribute(ctx, observability.AttrTargetLang, req.TargetLanguage)

	log := c.log.WithContext(ctx).WithFields(logger.Fields(
		"source_language", req.SourceLanguage,
		"target_language", req.TargetLanguage,
	))
	start := time.Now()
	c.metrics.RunStarted(ctx, pipelineName)

	tracker := NewTracker(model, hdr, emit)
	out, err := model.Translate(ctx, req.Text, backend.TranslateOptions{
		SourceLanguage:      req.SourceLanguage,
		TargetLanguage:      req.TargetLanguage,
		OnIncrementalOutput: tracker.OnOutput,
	})
	if terr := tracker.Err(); terr != nil {
		err = terr
	} else if err != nil {
		err = apperrors.InferenceFailed(pipelineName, err)
	}

	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, context.Canceled) {
			status = "canceled"
		}
		out = nil
		observability.SetSpanError(ctx, err)
		log.Error("translation failed", logger.ErrorFields("translate", err))
		emitError(emit, hdr, err)
	} else {
		log.Info("translation finished", logger.DurationFields("translate", time.Since(start)))
	}
	c.metrics.RecordRun(ctx, pipelineName, status, time.Since(start))

	// Idle before complete so a consumer reacting to it can start the next run.
	// The next run's LOADING may then reach the shared channel ahead of this
	// complete; consumers drop it by run id (orchestrator.Session.Apply).
	c.machine.Release(t)
	tracker.Complete(out)
	return err
}

func (c *Controller) reject(ctx context.Context, err error) {
	c.metrics.RecordRejected(ctx, pipelineName, string(apperrors.CodeOf(err)))
}

func emitError(emit protocol.Emit, hdr protocol.Header, err error) {
	env := protocol.Error{Header: hdr, Code: string(apperrors.CodeOf(err)), Message: err.Error()}
	if appErr, ok := apperrors.AsAppError(err); ok {
		env.Message = appErr.Message
	}
	emit(env)
}
