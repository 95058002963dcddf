// Package metrics defines the sinks that record dispatch outcomes. A sink
// must implement MetricsSink and may implement any of the optional recorder
// interfaces; callers type-assert before using them. Sinks are built from
// configuration through the registry in factory.go and several sinks are
// combined with NewMultiSink.
package metrics
