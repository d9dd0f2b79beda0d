package backend

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/pipeline"
)

func quietLoader[T any](load LoadFunc[T]) *Loader[T] {
	return NewLoader("test", load, WithLoaderLogger(logger.NewNop()))
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

func TestLoaderSharesInFlightLoad(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	l := quietLoader(func(ctx context.Context, progress ProgressFunc) (string, error) {
		calls.Add(1)
		progress(ProgressEvent{File: "a", Status: ProgressInitiate})
		<-gate
		progress(ProgressEvent{File: "a", Status: ProgressDone, Progress: 100})
		return "model", nil
	})

	const waiters = 5
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		events = make(map[int][]ProgressEvent)
	)
	started := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			got, err := l.Get(context.Background(), func(ev ProgressEvent) {
				mu.Lock()
				events[i] = append(events[i], ev)
				mu.Unlock()
			})
			if err != nil || got != "model" {
				t.Errorf("waiter %d: got %q, %v", i, got, err)
			}
		}(i)
	}
	for i := 0; i < waiters; i++ {
		<-started
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly one load, got %d", calls.Load())
	}
	for i := 0; i < waiters; i++ {
		evs := events[i]
		if len(evs) != 2 || evs[0].Status != ProgressInitiate || evs[1].Status != ProgressDone {
			t.Errorf("waiter %d saw %+v", i, evs)
		}
	}
	if !l.Loaded() {
		t.Error("expected instance to be stored")
	}

	// Later calls return the stored instance without progress.
	var late int
	if _, err := l.Get(context.Background(), func(ProgressEvent) { late++ }); err != nil || late != 0 {
		t.Errorf("expected stored instance, got err=%v events=%d", err, late)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no reload, got %d loads", calls.Load())
	}
}

func TestLoaderFailureIsNotStored(t *testing.T) {
	var calls atomic.Int32
	l := quietLoader(func(context.Context, ProgressFunc) (int, error) {
		if calls.Add(1) == 1 {
			return 0, errors.New("offline")
		}
		return 42, nil
	})

	if _, err := l.Get(context.Background(), nil); err == nil {
		t.Fatal("expected first load to fail")
	}
	if l.Loaded() {
		t.Fatal("failed load must not be stored")
	}
	got, err := l.Get(context.Background(), nil)
	if err != nil || got != 42 {
		t.Fatalf("retry: got %d, %v", got, err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 load attempts, got %d", calls.Load())
	}
}

func TestLoaderCanceledWaiterDoesNotCancelLoad(t *testing.T) {
	gate := make(chan struct{})
	l := quietLoader(func(ctx context.Context, _ ProgressFunc) (string, error) {
		select {
		case <-gate:
			return "model", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := l.Get(ctx, nil)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled wait, got %v", err)
	}

	close(gate)
	got, err := l.Get(context.Background(), nil)
	if err != nil || got != "model" {
		t.Fatalf("expected detached load to finish, got %q, %v", got, err)
	}
}

func TestLoaderReplaysProgressToLateJoiners(t *testing.T) {
	gate := make(chan struct{})
	reported := make(chan struct{})
	l := quietLoader(func(_ context.Context, progress ProgressFunc) (string, error) {
		progress(ProgressEvent{File: "weights", Status: ProgressInitiate})
		progress(ProgressEvent{File: "weights", Status: ProgressUpdate, Progress: 40})
		close(reported)
		<-gate
		return "model", nil
	})

	go func() { _, _ = l.Get(context.Background(), nil) }()
	<-reported

	var seen []ProgressEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Get(context.Background(), func(ev ProgressEvent) { seen = append(seen, ev) })
	}()
	time.Sleep(10 * time.Millisecond)
	close(gate)
	<-done

	if len(seen) != 2 || seen[1].Progress != 40 {
		t.Errorf("expected replayed events, got %+v", seen)
	}
}

func TestLoaderStalledWaiterDoesNotBlockOthers(t *testing.T) {
	gate := make(chan struct{})
	l := quietLoader(func(_ context.Context, progress ProgressFunc) (string, error) {
		progress(ProgressEvent{File: "weights", Status: ProgressInitiate})
		<-gate
		for i := 1; i < 10; i++ {
			progress(ProgressEvent{File: "weights", Status: ProgressUpdate, Progress: float64(i * 10)})
		}
		progress(ProgressEvent{File: "weights", Status: ProgressDone, Progress: 100})
		return "model", nil
	})

	stall := make(chan struct{})
	stalled := make(chan struct{})
	var once sync.Once
	go func() {
		_, _ = l.Get(context.Background(), func(ProgressEvent) {
			once.Do(func() { close(stalled) })
			<-stall
		})
	}()
	<-stalled
	defer close(stall)

	done := make(chan []ProgressEvent, 1)
	go func() {
		var seen []ProgressEvent
		_, err := l.Get(context.Background(), func(ev ProgressEvent) { seen = append(seen, ev) })
		if err != nil {
			t.Errorf("get: %v", err)
		}
		done <- seen
	}()
	time.Sleep(10 * time.Millisecond)
	close(gate)

	select {
	case seen := <-done:
		if len(seen) != 11 || seen[10].Status != ProgressDone {
			t.Errorf("expected every event, got %+v", seen)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("a stalled waiter blocked the load")
	}
	if !l.Loaded() {
		t.Error("expected the load to complete")
	}
}

type pingable struct{ err error }

func (p pingable) Ping(context.Context) error { return p.err }

func TestLoaderPing(t *testing.T) {
	down := errors.New("down")
	l := quietLoader(func(context.Context, ProgressFunc) (pingable, error) { return pingable{err: down}, nil })

	if checked, err := l.Ping(context.Background()); checked || err != nil {
		t.Fatalf("unloaded: checked=%t err=%v", checked, err)
	}
	if _, err := l.Get(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if checked, err := l.Ping(context.Background()); !checked || !errors.Is(err, down) {
		t.Errorf("loaded: checked=%t err=%v", checked, err)
	}

	plain := quietLoader(func(context.Context, ProgressFunc) (string, error) { return "model", nil })
	_, _ = plain.Get(context.Background(), nil)
	if checked, _ := plain.Ping(context.Background()); checked {
		t.Error("instances without Ping are not checked")
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistry(t *testing.T) {
	r := NewRegistry[string]()
	r.Register("echo", func(cfg map[string]any) (LoadFunc[string], error) {
		model := String(cfg, "model", "tiny")
		return func(context.Context, ProgressFunc) (string, error) { return model, nil }, nil
	})
	r.Register("alpha", func(map[string]any) (LoadFunc[string], error) { return nil, errors.New("bad config") })

	if got := r.List(); len(got) != 2 || got[0] != "alpha" {
		t.Errorf("unexpected list %v", got)
	}
	load, err := r.Create("echo", map[string]any{"model": "base"})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := load(context.Background(), nil); got != "base" {
		t.Errorf("got %q", got)
	}
	if _, err := r.Create("alpha", nil); err == nil {
		t.Error("expected factory error")
	}
	if _, err := r.Create("missing", nil); err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Errorf("expected not registered error, got %v", err)
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := map[string]any{"a": 3, "b": "2.5", "c": 1.5, "s": "x", "l": []any{"p", 1, "q"}}
	tests := []struct {
		key  string
		want float64
	}{{"a", 3}, {"b", 2.5}, {"c", 1.5}, {"missing", 9}}
	for _, tc := range tests {
		if got := Float(cfg, tc.key, 9); got != tc.want {
			t.Errorf("Float(%s) = %v, want %v", tc.key, got, tc.want)
		}
	}
	if String(cfg, "s", "d") != "x" || String(cfg, "a", "d") != "d" {
		t.Error("unexpected String results")
	}
	if l := Strings(cfg, "l"); len(l) != 2 || l[1] != "q" {
		t.Errorf("unexpected Strings result %v", l)
	}
}

// ---------------------------------------------------------------------------
// NDJSON
// ---------------------------------------------------------------------------

type record struct {
	Type string `json:"type"`
	N    int    `json:"n"`
}

func TestNDJSON(t *testing.T) {
	body := io.NopCloser(strings.NewReader("{\"type\":\"a\",\"n\":1}\n\n{\"type\":\"b\",\"n\":2}\n"))
	got, err := pipeline.Collect(context.Background(), NDJSON[record](body))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Type != "b" || got[1].N != 2 {
		t.Errorf("unexpected records %+v", got)
	}
}

func TestNDJSONBadLine(t *testing.T) {
	body := io.NopCloser(strings.NewReader("{\"type\":\"a\"}\nnot json\n"))
	_, err := pipeline.Collect(context.Background(), NDJSON[record](body))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 decode error, got %v", err)
	}
}
