package transcription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kbukum/scribe/backend"
	apperrors "github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/lifecycle"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/protocol"
	"github.com/kbukum/scribe/worker"
)

const pipelineName = string(protocol.Transcription)

const (
	// ChunkLength is the audio window decoded as one unit.
	ChunkLength = 30 * time.Second
	// DefaultStride is the overlap shared with neighbouring chunks.
	DefaultStride = 5 * time.Second
)

// Controller runs transcriptions for one session, one at a time.
type Controller struct {
	loader  *backend.Loader[backend.Transcriber]
	machine *lifecycle.Machine
	stride  time.Duration
	log     *logger.Logger
	metrics *observability.InferenceMetrics

	mu    sync.Mutex
	model backend.Transcriber
}

// Option configures a Controller.
type Option func(*Controller)

// WithStride sets the chunk overlap passed to the backend and the decoder.
func WithStride(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.stride = d
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics records runs on m.
func WithMetrics(m *observability.InferenceMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates a Controller backed by the shared loader.
func NewController(loader *backend.Loader[backend.Transcriber], opts ...Option) *Controller {
	c := &Controller{
		loader:  loader,
		machine: lifecycle.New(pipelineName),
		stride:  DefaultStride,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.WithComponent("transcription")
	}
	return c
}

// Phase returns the controller's lifecycle phase.
func (c *Controller) Phase() lifecycle.Phase { return c.machine.Phase() }

// EnsureLoaded loads the backend if needed, reporting progress on emit.
// Concurrent callers share one load.
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
	emit(protocol.Ready{Header: hdr})
	return nil
}

// Run transcribes audio on the loaded backend. It fails without emitting
// anything when the backend is not loaded or a run is in progress.
func (c *Controller) Run(ctx context.Context, audio []float32, hdr protocol.Header, emit protocol.Emit) error {
	t, err := c.machine.Acquire()
	if err != nil {
		c.reject(ctx, err)
		return err
	}
	defer c.machine.Release(t)
	return c.run(ctx, t, audio, hdr, emit)
}

// Admit reserves the controller and returns a job that loads the backend
// and runs the transcription. A busy controller is rejected here, before
// any envelope is emitted.
func (c *Controller) Admit(audio []float32, hdr protocol.Header) (worker.Job, error) {
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
			emit(protocol.Finished{Header: hdr})
			return err
		}
		return c.run(ctx, t, audio, hdr, emit)
	}, nil
}

func (c *Controller) run(ctx context.Context, t lifecycle.Ticket, audio []float32, hdr protocol.Header, emit protocol.Emit) error {
	if err := c.machine.BeginRun(t); err != nil {
		c.reject(ctx, err)
		return err
	}
	c.mu.Lock()
	model := c.model
	c.mu.Unlock()

	ctx = logger.ContextWithRunID(ctx, hdr.RunID)
	ctx, span := observability.StartSpan(ctx, observability.SpanTranscriptionRun)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrRunID, hdr.RunID)
	observability.SetSpanAttribute(ctx, observability.AttrPipeline, pipelineName)

	log := c.log.WithContext(ctx)
	start := time.Now()
	c.metrics.RunStarted(ctx, pipelineName)

	tracker := NewTracker(model, c.stride, hdr, emit, c.log)
	tracker.metrics = c.metrics

	_, err := model.Transcribe(ctx, audio, backend.TranscribeOptions{
		SamplingDisabled: true,
		ChunkLength:      ChunkLength,
		StrideLength:     c.stride,
		ReturnTimestamps: true,
		OnToken:          tracker.OnToken,
		OnChunk:          tracker.OnChunk,
	})
	if terr := tracker.Err(); terr != nil {
		err = terr
	} else if err != nil {
		err = apperrors.InferenceFailed(pipelineName, err)
	}

	observability.SetSpanAttribute(ctx, observability.AttrChunks, len(tracker.Chunks()))
	status := "ok"
	if err != nil {
		status = runStatus(err)
		observability.SetSpanError(ctx, err)
		log.Error("transcription failed", logger.ErrorFields("transcribe", err))
		emitError(emit, hdr, err)
	} else {
		log.Info("transcription finished", logger.DurationFields("transcribe", time.Since(start)))
	}
	c.metrics.RecordRun(ctx, pipelineName, status, time.Since(start))

	// Idle before FINISHED so a consumer reacting to it can start the next run.
	// The next run's LOADING may then reach the shared channel ahead of this
	// FINISHED; consumers drop it by run id (orchestrator.Session.Apply).
	c.machine.Release(t)
	tracker.Finish()
	return err
}

func (c *Controller) reject(ctx context.Context, err error) {
	c.metrics.RecordRejected(ctx, pipelineName, string(apperrors.CodeOf(err)))
}

func runStatus(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}

func emitError(emit protocol.Emit, hdr protocol.Header, err error) {
	env := protocol.Error{Header: hdr, Code: string(apperrors.CodeOf(err)), Message: err.Error()}
	if appErr, ok := apperrors.AsAppError(err); ok {
		env.Message = appErr.Message
	}
	emit(env)
}
