// Package telemetry defines the sink the engine reports degraded-data
// fallbacks and absorbed faults to. It is injected into each component so
// the core carries no process-global logger and stays testable.
package telemetry

import "github.com/rs/zerolog"

// Telemetry receives warnings and errors from engine components.
// It is not part of the engine's correctness contract; sinks must not block.
type Telemetry interface {
	// Warn reports a degraded-data fallback (missing timeframe, empty series)
	Warn(symbol, msg string, err error)
	// Error reports an absorbed computation fault
	Error(symbol, msg string, err error)
}

type zerologSink struct {
	logger zerolog.Logger
}

// NewZerolog returns a Telemetry backed by the given zerolog logger
func NewZerolog(logger zerolog.Logger) Telemetry {
	return &zerologSink{logger: logger.With().Str("component", "engine").Logger()}
}

func (s *zerologSink) Warn(symbol, msg string, err error) {
	evt := s.logger.Warn().Str("symbol", symbol)
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg(msg)
}

func (s *zerologSink) Error(symbol, msg string, err error) {
	evt := s.logger.Error().Str("symbol", symbol)
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg(msg)
}

type nopSink struct{}

// Nop returns a Telemetry that discards everything. Useful in tests.
func Nop() Telemetry {
	return nopSink{}
}

func (nopSink) Warn(symbol, msg string, err error)  {}
func (nopSink) Error(symbol, msg string, err error) {}
