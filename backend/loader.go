package backend

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
)

// Loader holds at most one backend instance per pipeline. Concurrent Get
// calls made while a load is in flight join it instead of starting another.
type Loader[T any] struct {
	name    string
	load    LoadFunc[T]
	log     *logger.Logger
	metrics *observability.InferenceMetrics

	mu       sync.Mutex
	instance T
	loaded   bool
	inflight *loadCall[T]
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	log     *logger.Logger
	metrics *observability.InferenceMetrics
}

// WithLoaderLogger sets the logger used to report load outcomes.
func WithLoaderLogger(l *logger.Logger) LoaderOption {
	return func(o *loaderOptions) { o.log = l }
}

// WithLoaderMetrics records load durations and finished files on m.
func WithLoaderMetrics(m *observability.InferenceMetrics) LoaderOption {
	return func(o *loaderOptions) { o.metrics = m }
}

// NewLoader creates a Loader for the named pipeline.
func NewLoader[T any](name string, load LoadFunc[T], opts ...LoaderOption) *Loader[T] {
	o := &loaderOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("loader")
	}
	return &Loader[T]{
		name:    name,
		load:    load,
		log:     o.log.WithFields(logger.Fields(logger.FieldPipeline, name)),
		metrics: o.metrics,
	}
}

// Name returns the pipeline name the loader serves.
func (l *Loader[T]) Name() string { return l.name }

// Loaded reports whether an instance is stored.
func (l *Loader[T]) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Ping checks the stored instance when it implements Pinger. checked is
// false when nothing is loaded or the backend has no reachability probe.
func (l *Loader[T]) Ping(ctx context.Context) (checked bool, err error) {
	l.mu.Lock()
	inst, loaded := l.instance, l.loaded
	l.mu.Unlock()
	if !loaded {
		return false, nil
	}
	p, ok := any(inst).(Pinger)
	if !ok {
		return false, nil
	}
	return true, p.Ping(ctx)
}

// Get returns the stored instance, loading it first if needed. progress
// receives every event of the load this call waits on, including events
// reported before the call joined. Events are delivered on the calling
// goroutine, so a slow progress func delays only its own caller.
// Cancelling ctx abandons the wait but not the load itself.
func (l *Loader[T]) Get(ctx context.Context, progress ProgressFunc) (T, error) {
	l.mu.Lock()
	if l.loaded {
		inst := l.instance
		l.mu.Unlock()
		return inst, nil
	}
	call := l.inflight
	if call == nil {
		call = newLoadCall[T]()
		l.inflight = call
		go l.run(context.WithoutCancel(ctx), call)
	}
	id, notify := call.subscribe()
	l.mu.Unlock()
	defer call.unsubscribe(id)

	cursor := 0
	deliver := func() {
		evs := call.since(cursor)
		cursor += len(evs)
		if progress == nil {
			return
		}
		for _, ev := range evs {
			progress(ev)
		}
	}
	for {
		select {
		case <-notify:
			deliver()
		case <-call.done:
			deliver()
			return call.val, call.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

func (l *Loader[T]) run(ctx context.Context, call *loadCall[T]) {
	ctx, span := observability.StartSpan(ctx, observability.SpanModelLoad)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrPipeline, l.name)

	start := time.Now()
	l.log.Info("Loading backend")
	val, err := l.load(ctx, func(ev ProgressEvent) {
		if ev.Status == ProgressDone {
			l.metrics.RecordFileDone(ctx, l.name)
		}
		call.publish(ev)
	})

	status := "ok"
	if err != nil {
		status = "error"
		observability.SetSpanError(ctx, err)
		l.log.Error("Backend load failed", logger.ErrorFields("load", err))
	} else {
		l.log.Info("Backend loaded", logger.DurationFields("load", time.Since(start)))
	}
	l.metrics.RecordLoad(ctx, l.name, status, time.Since(start))

	l.mu.Lock()
	if err == nil {
		l.instance = val
		l.loaded = true
	}
	l.inflight = nil
	l.mu.Unlock()

	call.val, call.err = val, err
	close(call.done)
}

// loadCall is the in-flight future shared by every waiter of one load.
// Progress is kept as an append-only history; waiters read it from their
// own cursor when notified.
type loadCall[T any] struct {
	done chan struct{}
	val  T
	err  error

	mu      sync.Mutex
	history []ProgressEvent
	subs    map[int]chan struct{}
	nextID  int
}

func newLoadCall[T any]() *loadCall[T] {
	return &loadCall[T]{done: make(chan struct{}), subs: make(map[int]chan struct{})}
}

// subscribe registers a waiter. The returned channel is signalled whenever
// history grows; it starts signalled so past events are replayed.
func (c *loadCall[T]) subscribe() (int, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	notify := make(chan struct{}, 1)
	notify <- struct{}{}
	c.subs[c.nextID] = notify
	return c.nextID, notify
}

func (c *loadCall[T]) unsubscribe(id int) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

// since returns the events recorded after cursor. Recorded events are never
// modified, so the returned slice is safe to read without the lock.
func (c *loadCall[T]) since(cursor int) []ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history[cursor:len(c.history):len(c.history)]
}

// publish records ev and wakes every waiter without blocking on any.
func (c *loadCall[T]) publish(ev ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, ev)
	for _, notify := range c.subs {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}
