// Package log provides nibbana's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by the
// standard library's slog through a bridge handler that feeds a
// formatter/outputs pipeline, so records look the same whether they come from
// the facade or from code that only knows *slog.Logger (see Slog).
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.WithComponent("upload")
//	l.Info("batch uploaded", log.Int("entries", 12))
//
// Library code never constructs a global logger; a Logger is passed in
// through options and components tag themselves with WithComponent.
package log
