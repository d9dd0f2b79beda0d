package fake

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/scribe/backend"
)

// Load scripts a backend load: every file reports initiate, one progress
// step at 50 and done before the instance is returned.
type Load[T any] struct {
	Instance T
	Files    []string
	// Err fails the load after the file events when set.
	Err error
	// Gate, when set, holds the load open until it is closed or receives.
	Gate <-chan struct{}

	calls atomic.Int32
}

// Func returns the LoadFunc that plays the script.
func (l *Load[T]) Func() backend.LoadFunc[T] {
	return func(ctx context.Context, progress backend.ProgressFunc) (T, error) {
		l.calls.Add(1)
		var zero T
		for _, f := range l.Files {
			progress(backend.ProgressEvent{File: f, Status: backend.ProgressInitiate})
			progress(backend.ProgressEvent{File: f, Status: backend.ProgressUpdate, Progress: 50})
		}
		if l.Gate != nil {
			select {
			case <-l.Gate:
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		for _, f := range l.Files {
			progress(backend.ProgressEvent{File: f, Status: backend.ProgressUpdate, Progress: 100})
			progress(backend.ProgressEvent{File: f, Status: backend.ProgressDone, Progress: 100})
		}
		if l.Err != nil {
			return zero, l.Err
		}
		return l.Instance, nil
	}
}

// Calls returns how many times the load has been invoked.
func (l *Load[T]) Calls() int { return int(l.calls.Load()) }
