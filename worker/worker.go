// Package worker serializes run admission for one pipeline of one session
// and delivers the envelopes of admitted runs in emission order.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/protocol"
)

// DefaultBuffer is the default capacity of the event channel.
const DefaultBuffer = 256

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker stopped")

// Job is an admitted run. It emits envelopes and returns when the run is
// over.
type Job func(ctx context.Context, emit protocol.Emit) error

// AdmitFunc decides synchronously whether req may run.
type AdmitFunc[R any] func(req R) (Job, error)

type submission[R any] struct {
	req   R
	reply chan error
}

// Worker owns one admission loop goroutine. Admitted jobs run on their own
// goroutines and share one ordered event channel.
type Worker[R any] struct {
	name   string
	admit  AdmitFunc[R]
	log    *logger.Logger
	events chan protocol.Envelope

	requests chan submission[R]
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	jobs     sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Worker.
type Option func(*options)

type options struct {
	buffer int
	log    *logger.Logger
}

// WithBuffer sets the event channel capacity.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.buffer = n
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New starts a Worker named after its pipeline.
func New[R any](name string, admit AdmitFunc[R], opts ...Option) *Worker[R] {
	o := &options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("worker")
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker[R]{
		name:     name,
		admit:    admit,
		log:      o.log.WithFields(logger.Fields(logger.FieldPipeline, name)),
		events:   make(chan protocol.Envelope, o.buffer),
		requests: make(chan submission[R]),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	go w.loop()
	return w
}

// Submit asks the worker to run req. It returns the admission error, or nil
// once the job has started.
func (w *Worker[R]) Submit(ctx context.Context, req R) error {
	s := submission[R]{req: req, reply: make(chan error, 1)}
	select {
	case w.requests <- s:
	case <-w.loopDone:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-s.reply
}

// Events returns the channel of emitted envelopes. It is closed by Stop.
func (w *Worker[R]) Events() <-chan protocol.Envelope { return w.events }

// Stop cancels running jobs, waits for them to return and closes the event
// channel.
func (w *Worker[R]) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		<-w.loopDone
		w.jobs.Wait()
		close(w.events)
	})
}

func (w *Worker[R]) loop() {
	defer close(w.loopDone)
	for {
		select {
		case s := <-w.requests:
			job, err := w.admit(s.req)
			if err == nil {
				w.jobs.Add(1)
				go w.run(job)
			}
			s.reply <- err
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker[R]) run(job Job) {
	defer w.jobs.Done()
	if err := job(w.ctx, w.emit); err != nil {
		w.log.Debug("job ended with error", logger.ErrorFields("run", err))
	}
}

// emit blocks until the envelope is buffered; it gives up only once the
// worker is stopping.
func (w *Worker[R]) emit(env protocol.Envelope) {
	select {
	case w.events <- env:
	case <-w.ctx.Done():
	}
}
