// Package log is the logging port used by every bulkq component.
//
// Components accept a [Logger] and never talk to a concrete logging library.
// Adapters are provided for zerolog and zap, plus a no-op logger that is the
// default when nothing is configured:
//
//	logger := log.NewZerologAdapter()
//	engine, err := bulk.New(cfg, op, bulk.WithLogger(logger))
//
// Fields are built with the helper constructors ([String], [Int], [Err], ...)
// so adapters can map them onto typed encoder calls instead of reflection.
package log
