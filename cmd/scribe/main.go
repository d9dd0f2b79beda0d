// Command scribe serves streaming transcription and translation sessions
// over HTTP and server-sent events.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/scribe/api"
	"github.com/kbukum/scribe/backend"
	"github.com/kbukum/scribe/backend/fake"
	"github.com/kbukum/scribe/backend/ollama"
	"github.com/kbukum/scribe/backend/whisper"
	"github.com/kbukum/scribe/bootstrap"
	"github.com/kbukum/scribe/component"
	"github.com/kbukum/scribe/config"
	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/orchestrator"
	"github.com/kbukum/scribe/server"
	"github.com/kbukum/scribe/sse"
	"github.com/kbukum/scribe/version"
)

const serviceName = "scribe"

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := &Config{}
	if err := config.LoadConfig(serviceName, cfg); err != nil {
		return err
	}
	if cfg.Version == "" {
		cfg.Version = version.Get().Version
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	log := app.Logger

	metrics, err := observability.NewInferenceMetrics(observability.Meter(serviceName))
	if err != nil {
		return err
	}

	transcriber, translator, err := newLoaders(cfg, log, metrics)
	if err != nil {
		return err
	}

	events := sse.NewComponent(api.EventsPath)
	sessions := orchestrator.NewManager(transcriber, translator, events.Hub(),
		orchestrator.WithStride(cfg.Transcription.Stride),
		orchestrator.WithTranslationSource(cfg.Translation.SourceLanguage),
		orchestrator.WithManagerLogger(log.WithComponent("sessions")),
		orchestrator.WithMetrics(metrics),
	)
	httpServer := server.New(cfg.Server, log, metrics)

	for _, c := range []component.Component{
		observability.NewComponent(cfg.Telemetry, cfg.Name, cfg.Version, cfg.Environment),
		events,
		sessions,
		server.NewComponent(httpServer),
	} {
		if err := app.RegisterComponent(c); err != nil {
			return err
		}
	}

	// Routes go on the engine before the server component starts serving.
	httpServer.RegisterDefaultEndpoints(app.Name, app.Components.HealthAll)
	api.NewHandler(sessions, events.Hub(), log.WithComponent("api")).Register(httpServer.GinEngine())

	app.OnReady(func(context.Context) error {
		log.Info("scribe ready", logger.Fields(
			"addr", httpServer.Addr(),
			"version", version.Get().String(),
		))
		return nil
	})
	return app.Run(ctx)
}

// newLoaders builds the process-wide backend loaders from the configured
// backend names.
func newLoaders(cfg *Config, log *logger.Logger, metrics *observability.InferenceMetrics) (*backend.Loader[backend.Transcriber], *backend.Loader[backend.Translator], error) {
	transcribers := backend.NewRegistry[backend.Transcriber]()
	transcribers.Register(fake.Name, fake.TranscriberFactory())
	transcribers.Register(whisper.Name, whisper.Factory())

	translators := backend.NewRegistry[backend.Translator]()
	translators.Register(fake.Name, fake.TranslatorFactory())
	translators.Register(ollama.Name, ollama.Factory())

	loadTranscriber, err := transcribers.Create(cfg.Transcription.Backend, cfg.Transcription.Options)
	if err != nil {
		return nil, nil, fmt.Errorf("transcription backend: %w", err)
	}
	loadTranslator, err := translators.Create(cfg.Translation.Backend, cfg.Translation.Options)
	if err != nil {
		return nil, nil, fmt.Errorf("translation backend: %w", err)
	}

	loaderLog := log.WithComponent("loader")
	log.Info("backends selected", logger.Fields(
		"transcription", cfg.Transcription.Backend,
		"translation", cfg.Translation.Backend,
	))
	return backend.NewLoader("transcription", loadTranscriber, backend.WithLoaderLogger(loaderLog), backend.WithLoaderMetrics(metrics)),
		backend.NewLoader("translation", loadTranslator, backend.WithLoaderLogger(loaderLog), backend.WithLoaderMetrics(metrics)),
		nil
}
