// Package logger provides structured logging for scribe using zerolog.
//
// It supports JSON and console output, level configuration and
// component-scoped loggers carrying structured fields such as the pipeline
// name and run id.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.WithComponent("transcription")
//	log.Info("run finished", logger.Fields("run_id", id, "chunks", n))
package logger
