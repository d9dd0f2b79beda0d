// Package pipeline provides lazy, pull-based stream operators.
//
// No work happens until values are pulled via Collect, Drain or ForEach.
// Each stage pulls from the previous one on demand, so a slow sink slows the
// source instead of growing a queue.
//
// scribe uses pipelines to pump worker events into session state and out to
// SSE subscribers, and to walk NDJSON streams from model sidecars:
//
//	src := pipeline.FromChannel(w.Events())
//	current := pipeline.Filter(src, session.isCurrent)
//	applied := pipeline.Tap(current, session.apply)
//	pipeline.Drain(applied, publish).Run(ctx)
package pipeline
