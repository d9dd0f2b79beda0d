package fake

import (
	"time"

	"github.com/kbukum/scribe/backend"
)

// Name is the registered backend name.
const Name = "fake"

// DemoText is transcribed when no script text is configured.
const DemoText = "the quick brown fox jumps over the lazy dog"

// TranscriberFactory builds a demo transcriber from options "text",
// "words_per_chunk", "step_delay_ms" and "files".
func TranscriberFactory() backend.Factory[backend.Transcriber] {
	return func(cfg map[string]any) (backend.LoadFunc[backend.Transcriber], error) {
		v, segments := ScriptFromText(backend.String(cfg, "text", DemoText), int(backend.Float(cfg, "words_per_chunk", 4)))
		t := NewTranscriber(v, segments, WithStepDelay(delay(cfg)))
		return loadFunc[backend.Transcriber](t, cfg), nil
	}
}

// TranslatorFactory builds a demo translator from options "step_delay_ms"
// and "files".
func TranslatorFactory() backend.Factory[backend.Translator] {
	return func(cfg map[string]any) (backend.LoadFunc[backend.Translator], error) {
		t := NewTranslator(Tagged, WithTranslateDelay(delay(cfg)))
		return loadFunc[backend.Translator](t, cfg), nil
	}
}

func loadFunc[T any](inst T, cfg map[string]any) backend.LoadFunc[T] {
	files := backend.Strings(cfg, "files")
	if len(files) == 0 {
		files = []string{"config.json", "model.bin"}
	}
	return (&Load[T]{Instance: inst, Files: files}).Func()
}

func delay(cfg map[string]any) time.Duration {
	return time.Duration(backend.Float(cfg, "step_delay_ms", 0)) * time.Millisecond
}
