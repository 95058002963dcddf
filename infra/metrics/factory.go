package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mozocode/On-The-Way-Rebuild/core/factory"
	coremetrics "github.com/mozocode/On-The-Way-Rebuild/core/metrics"
	"github.com/mozocode/On-The-Way-Rebuild/infra/logger"
)

// init registers the built-in sinks next to core's "nop".
func init() {
	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c, logger.New("influx-sink")), nil
	})
}
