package orchestrator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/backend/fake"
	"github.com/kbukum/scribe/component"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/languages"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/orchestrator"
	"github.com/kbukum/scribe/protocol"
	"github.com/kbukum/scribe/sse"
)

// --- helpers ---

type publisher struct {
	mu     sync.Mutex
	events []sse.Event
	topics map[string]int
}

func (p *publisher) Publish(pattern string, ev sse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topics == nil {
		p.topics = make(map[string]int)
	}
	p.topics[pattern]++
	p.events = append(p.events, ev)
}

func (p *publisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Name)
	}
	return out
}

type fixture struct {
	manager        *orchestrator.Manager
	pub            *publisher
	transcribeLoad *fake.Load[backend.Transcriber]
	translateLoad  *fake.Load[backend.Translator]
}

func newFixture(t *testing.T, tr backend.Transcriber, tl backend.Translator) *fixture {
	t.Helper()
	f := &fixture{
		pub:            &publisher{},
		transcribeLoad: &fake.Load[backend.Transcriber]{Instance: tr, Files: []string{"encoder.onnx", "decoder.onnx"}},
		translateLoad:  &fake.Load[backend.Translator]{Instance: tl, Files: []string{"model.bin"}},
	}
	nop := logger.NewNop()
	f.manager = orchestrator.NewManager(
		backend.NewLoader[backend.Transcriber]("transcription", f.transcribeLoad.Func(), backend.WithLoaderLogger(nop)),
		backend.NewLoader[backend.Translator]("translation", f.translateLoad.Func(), backend.WithLoaderLogger(nop)),
		f.pub,
		orchestrator.WithManagerLogger(nop),
	)
	t.Cleanup(func() { _ = f.manager.Stop(context.Background()) })
	return f
}

func demoTranscriber(text string, opts ...fake.TranscriberOption) *fake.Transcriber {
	v, segments := fake.ScriptFromText(text, 2)
	return fake.NewTranscriber(v, segments, opts...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hdr(p protocol.Pipeline, runID string) protocol.Header {
	return protocol.Header{Pipeline: p, RunID: runID}
}

// --- DownloadProgress ---

func TestDownloadProgressAggregate(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]float64
		want  int
	}{
		{"no files", nil, 0},
		{"one file half", map[string]float64{"a": 50}, 50},
		{"two files", map[string]float64{"a": 50, "b": 100}, 75},
		{"rounding", map[string]float64{"a": 33, "b": 0, "c": 0}, 11},
		{"clamped", map[string]float64{"a": 140, "b": -5}, 50},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var d orchestrator.DownloadProgress
			for f, p := range tc.files {
				d.Set(f, p)
			}
			if got := d.Aggregate(); got != tc.want {
				t.Errorf("Aggregate() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDownloadProgressApply(t *testing.T) {
	var d orchestrator.DownloadProgress
	h := hdr(protocol.Transcription, "r")
	d.Apply(protocol.Download{Header: h, File: "a", Phase: backend.ProgressInitiate, Progress: 80})
	if got := d.Files()["a"]; got != 0 {
		t.Errorf("initiate should reset to 0, got %v", got)
	}
	d.Apply(protocol.Download{Header: h, File: "a", Phase: backend.ProgressUpdate, Progress: 40})
	d.Apply(protocol.Download{Header: h, File: "b", Phase: backend.ProgressDone})
	if got := d.Aggregate(); got != 70 {
		t.Errorf("Aggregate() = %d, want 70", got)
	}
	d.Reset()
	if got := d.Aggregate(); got != 0 {
		t.Errorf("expected 0 after reset, got %d", got)
	}
}

// --- Session state ---

func TestApplyReplacesFinalizedTextWholesale(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	f := newFixture(t, demoTranscriber("x", fake.WithGate(gate)), fake.NewTranslator(nil))
	s := f.manager.Create()

	runID, err := s.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	h := hdr(protocol.Transcription, runID)

	steps := []struct {
		env  protocol.Envelope
		want string
	}{
		{protocol.Partial{Header: h, Result: protocol.Result{Text: "hel"}}, "hel"},
		{protocol.Partial{Header: h, Result: protocol.Result{Text: "hello"}}, "hello"},
		{protocol.Chunk{Header: h, Result: protocol.Result{Text: "hello"}}, "hello"},
		{protocol.Partial{Header: h, Result: protocol.Result{Text: " wor"}}, "hello wor"},
		{protocol.Chunk{Header: h, Result: protocol.Result{Text: "hello world"}}, "hello world"},
	}
	for i, st := range steps {
		if !s.Apply(st.env) {
			t.Fatalf("step %d not applied", i)
		}
		if got := s.DisplayedTranscript(); got != st.want {
			t.Errorf("step %d: displayed %q, want %q", i, got, st.want)
		}
	}
	snap := s.Snapshot()
	if snap.Transcription.Partial != "" || snap.Transcription.Finalized != "hello world" {
		t.Errorf("unexpected snapshot %+v", snap.Transcription)
	}
}

func TestApplyDropsStaleRuns(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	f := newFixture(t, demoTranscriber("x", fake.WithGate(gate)), fake.NewTranslator(nil))
	s := f.manager.Create()

	runID, err := s.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if s.Apply(protocol.Chunk{Header: hdr(protocol.Transcription, "other"), Result: protocol.Result{Text: "stale"}}) {
		t.Error("envelope of another run was applied")
	}
	if s.Apply(protocol.Update{Header: hdr(protocol.Translation, runID), Output: "wrong pipeline"}) {
		t.Error("translation envelope with a transcription run id was applied")
	}

	s.Reset()
	if s.Apply(protocol.Chunk{Header: hdr(protocol.Transcription, runID), Result: protocol.Result{Text: "late"}}) {
		t.Error("envelope of an abandoned run was applied")
	}
	if got := s.DisplayedTranscript(); got != "" {
		t.Errorf("expected empty transcript after reset, got %q", got)
	}
	if snap := s.Snapshot(); snap.Active || snap.Transcription.RunID != "" {
		t.Errorf("expected cleared snapshot, got %+v", snap)
	}
}

func TestPreviousRunTerminalEnvelopeIsDropped(t *testing.T) {
	f := newFixture(t, demoTranscriber("a b c d e f g h", fake.WithStepDelay(50*time.Millisecond)), fake.NewTranslator(nil))
	s := f.manager.Create()

	first, err := s.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	waitFor(t, "first run to finish", func() bool { return s.DisplayedTranscript() == "a b c d e f g h" && !s.Snapshot().Transcription.Transcribing })

	if _, err := s.Transcribe(context.Background(), nil); err != nil {
		t.Fatalf("second Transcribe: %v", err)
	}
	waitFor(t, "second run to start", func() bool { return s.Snapshot().Transcription.Transcribing })

	// The pipeline is released before FINISHED, so the next run can
	// publish ahead of it; a late FINISHED must not end the new run.
	if s.Apply(protocol.Finished{Header: hdr(protocol.Transcription, first)}) {
		t.Error("FINISHED of the previous run was applied")
	}
	if !s.Snapshot().Transcription.Transcribing {
		t.Error("the running transcription was ended by a stale FINISHED")
	}
}

func TestTranslationDisplayFallsBackToTranscript(t *testing.T) {
	tgate := make(chan struct{})
	lgate := make(chan struct{})
	defer close(tgate)
	defer close(lgate)
	f := newFixture(t, demoTranscriber("x", fake.WithGate(tgate)), fake.NewTranslator(nil, fake.WithTranslateGate(lgate)))
	s := f.manager.Create()

	runID, _ := s.Transcribe(context.Background(), nil)
	s.Apply(protocol.Chunk{Header: hdr(protocol.Transcription, runID), Result: protocol.Result{Text: "good night"}})
	if got := s.DisplayedTranslation(); got != "good night" {
		t.Fatalf("expected transcript before any translation, got %q", got)
	}

	trID, err := s.RequestTranslation(context.Background(), "fra_Latn")
	if err != nil || trID == "" {
		t.Fatalf("RequestTranslation: %q, %v", trID, err)
	}
	h := hdr(protocol.Translation, trID)

	s.Apply(protocol.Loaded{Header: h})
	if got := s.DisplayedTranslation(); got != "" {
		t.Errorf("expected empty translation while translating, got %q", got)
	}
	s.Apply(protocol.Update{Header: h, Output: "bonne"})
	if got := s.DisplayedTranslation(); got != "bonne" {
		t.Errorf("expected %q, got %q", "bonne", got)
	}
	out := &backend.TranslationOutput{TranslationText: "bonne nuit", TargetLanguage: "fra_Latn"}
	s.Apply(protocol.Complete{Header: h, Output: out})
	if got := s.DisplayedTranslation(); got != "bonne nuit" {
		t.Errorf("expected final translation, got %q", got)
	}
	snap := s.Snapshot()
	if snap.Translation.Translating || snap.Translation.Output != out || snap.Translation.TargetLanguage != "fra_Latn" {
		t.Errorf("unexpected translation view %+v", snap.Translation)
	}
}

func TestRequestTranslationNoOps(t *testing.T) {
	tgate := make(chan struct{})
	lgate := make(chan struct{})
	defer close(tgate)
	defer close(lgate)
	f := newFixture(t, demoTranscriber("x", fake.WithGate(tgate)), fake.NewTranslator(nil, fake.WithTranslateGate(lgate)))
	s := f.manager.Create()

	if id, err := s.RequestTranslation(context.Background(), "deu_Latn"); id != "" || err != nil {
		t.Errorf("expected no-op without transcript, got %q, %v", id, err)
	}

	runID, _ := s.Transcribe(context.Background(), nil)
	s.Apply(protocol.Chunk{Header: hdr(protocol.Transcription, runID), Result: protocol.Result{Text: "hello"}})
	before := s.Snapshot()

	for _, target := range []string{"", languages.Placeholder} {
		id, err := s.RequestTranslation(context.Background(), target)
		if id != "" || err != nil {
			t.Errorf("target %q: expected no-op, got %q, %v", target, id, err)
		}
	}
	if after := s.Snapshot(); after.Translation.RunID != before.Translation.RunID || after.Translation.TargetLanguage != "" {
		t.Errorf("placeholder changed state: %+v", after.Translation)
	}
	if n := f.translateLoad.Calls(); n != 0 {
		t.Errorf("placeholder reached the translation pipeline: %d loads", n)
	}

	first, err := s.RequestTranslation(context.Background(), "deu_Latn")
	if err != nil || first == "" {
		t.Fatalf("RequestTranslation: %q, %v", first, err)
	}
	s.Apply(protocol.Loaded{Header: hdr(protocol.Translation, first)})
	if id, err := s.RequestTranslation(context.Background(), "spa_Latn"); id != "" || err != nil {
		t.Errorf("expected no-op while translating, got %q, %v", id, err)
	}
}

func TestTranscribeRejectedWhileRunning(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	f := newFixture(t, demoTranscriber("x", fake.WithGate(gate)), fake.NewTranslator(nil))
	s := f.manager.Create()

	first, err := s.Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	s.Apply(protocol.Partial{Header: hdr(protocol.Transcription, first), Result: protocol.Result{Text: "keep"}})

	if _, err := s.Transcribe(context.Background(), nil); !errors.HasCode(err, errors.ErrCodeRunInProgress) {
		t.Fatalf("expected RUN_IN_PROGRESS, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Transcription.RunID != first || snap.Transcription.Text != "keep" {
		t.Errorf("rejected run changed state: %+v", snap.Transcription)
	}
}

func TestSetTab(t *testing.T) {
	f := newFixture(t, demoTranscriber("x"), fake.NewTranslator(nil))
	s := f.manager.Create()
	if err := s.SetTab(orchestrator.TabTranslation); err != nil {
		t.Fatalf("SetTab: %v", err)
	}
	if got := s.Snapshot().Tab; got != orchestrator.TabTranslation {
		t.Errorf("tab = %s", got)
	}
	if err := s.SetTab("settings"); err == nil {
		t.Error("expected error for unknown tab")
	}
}

// --- End to end ---

func TestSessionEndToEnd(t *testing.T) {
	f := newFixture(t, demoTranscriber("hello world again"), fake.NewTranslator(nil))
	s := f.manager.Create()

	if _, err := s.Transcribe(context.Background(), make([]float32, 16000)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	waitFor(t, "transcription to finish", func() bool {
		snap := s.Snapshot()
		return !snap.Transcription.Transcribing && snap.Transcription.Text == "hello world again"
	})
	if got := s.TranscriptionProgress(); got != 100 {
		t.Errorf("transcription progress = %d, want 100", got)
	}

	if _, err := s.RequestTranslation(context.Background(), "fra_Latn"); err != nil {
		t.Fatalf("RequestTranslation: %v", err)
	}
	waitFor(t, "translation to complete", func() bool {
		snap := s.Snapshot()
		return snap.Translation.Output != nil
	})
	if got := s.DisplayedTranslation(); got != "[fra_Latn] hello world again" {
		t.Errorf("translation = %q", got)
	}
	if got := s.TranslationProgress(); got != 100 {
		t.Errorf("translation progress = %d, want 100", got)
	}

	waitFor(t, "complete to be published", func() bool {
		names := f.pub.names()
		return strings.Contains(strings.Join(names, ","), string(protocol.StatusComplete)) &&
			names[len(names)-1] == orchestrator.EventSnapshot
	})
	names := strings.Join(f.pub.names(), ",")
	for _, want := range []string{"LOADING", "ready", "CHUNK", "FINISHED", "LOADED", "update", "complete", orchestrator.EventSnapshot} {
		if !strings.Contains(names, want) {
			t.Errorf("expected %s to be published, got %s", want, names)
		}
	}

	f.pub.mu.Lock()
	topics := f.pub.topics
	last := f.pub.events[len(f.pub.events)-1]
	f.pub.mu.Unlock()
	if topics[s.Topic()] == 0 || len(topics) != 1 {
		t.Errorf("expected every event on %s, got %v", s.Topic(), topics)
	}
	var snap orchestrator.Snapshot
	if err := json.Unmarshal(last.Data, &snap); err != nil || snap.SessionID != s.ID() {
		t.Errorf("last event is not a snapshot of the session: %v %s", err, last.Data)
	}
}

func TestSessionsShareLoadedBackends(t *testing.T) {
	f := newFixture(t, demoTranscriber("one two"), fake.NewTranslator(nil))
	a, b := f.manager.Create(), f.manager.Create()

	for _, s := range []*orchestrator.Session{a, b} {
		if _, err := s.Transcribe(context.Background(), nil); err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
	}
	for _, s := range []*orchestrator.Session{a, b} {
		waitFor(t, "both sessions to finish", func() bool {
			return s.DisplayedTranscript() == "one two" && !s.Snapshot().Transcription.Transcribing
		})
	}
	if n := f.transcribeLoad.Calls(); n != 1 {
		t.Errorf("expected one backend load across sessions, got %d", n)
	}
}

func TestManagerLookup(t *testing.T) {
	f := newFixture(t, demoTranscriber("x"), fake.NewTranslator(nil))
	s := f.manager.Create()

	if got, err := f.manager.Get(s.ID()); err != nil || got != s {
		t.Fatalf("Get: %v", err)
	}
	if err := f.manager.Close(s.ID()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.manager.Get(s.ID()); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND after close, got %v", err)
	}
	if err := f.manager.Close("missing"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestManagerHealthPingsLoadedBackends(t *testing.T) {
	f := newFixture(t, demoTranscriber("hello"), fake.NewTranslator(nil, fake.PingFailWith(fmt.Errorf("connection refused"))))

	if h := f.manager.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Fatalf("nothing loaded yet, got %+v", h)
	}

	s := f.manager.Create()
	if _, err := s.Transcribe(context.Background(), nil); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	waitFor(t, "transcription to finish", func() bool {
		return s.DisplayedTranscript() == "hello" && !s.Snapshot().Transcription.Transcribing
	})
	if _, err := s.RequestTranslation(context.Background(), "fra_Latn"); err != nil {
		t.Fatalf("RequestTranslation: %v", err)
	}
	waitFor(t, "translation to complete", func() bool { return s.Snapshot().Translation.Output != nil })

	h := f.manager.Health(context.Background())
	if h.Status != component.StatusDegraded || !strings.Contains(h.Message, "translation backend unreachable: connection refused") {
		t.Errorf("expected degraded translation backend, got %+v", h)
	}
}
