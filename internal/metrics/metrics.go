// Package metrics wires tracerpcd's counters/timers the way go-ethereum's
// own services do, through github.com/ethereum/go-ethereum/metrics rather
// than a separate metrics library (spec.md §6's ambient-stack addition).
package metrics

import "github.com/ethereum/go-ethereum/metrics"

var (
	// ExecutorCalls counts every executor invocation. It is one counter
	// shared by all executor methods, not broken down by method.
	ExecutorCalls = metrics.GetOrRegisterCounter("tracerpc/executor/calls", nil)
	// ExecutorErrors counts executor invocations that returned a non-nil
	// error (pre-check failures are not counted as errors; they are a
	// normal, expected result).
	ExecutorErrors = metrics.GetOrRegisterCounter("tracerpc/executor/errors", nil)
	// ExecutorDuration times one executor invocation end to end.
	ExecutorDuration = metrics.GetOrRegisterTimer("tracerpc/executor/duration", nil)

	// KVRoundtrip times one remotekv Cursor/Pair round trip.
	KVRoundtrip = metrics.GetOrRegisterTimer("tracerpc/kv/roundtrip", nil)
	// KVErrors counts failed remotekv round trips (transport errors that
	// force the stream closed).
	KVErrors = metrics.GetOrRegisterCounter("tracerpc/kv/errors", nil)

	// ReactorQueueDepth samples the worker pool's pending task count.
	ReactorQueueDepth = metrics.GetOrRegisterGauge("tracerpc/reactor/queue_depth", nil)
)
