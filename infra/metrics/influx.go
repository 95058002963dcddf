package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	coremetrics "github.com/mozocode/On-The-Way-Rebuild/core/metrics"
)

// InfluxConfig locates the InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig, log logger.Logger) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.OrNop(log),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig, log logger.Logger) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(timeout time.Duration, points ...*write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordDispatchResult writes one dispatch_result point per finished dispatch.
func (s *InfluxSink) RecordDispatchResult(res []coremetrics.DispatchResult) error {
	points := make([]*write.Point, 0, len(res))
	for _, r := range res {
		p := write.NewPointWithMeasurement("dispatch_result").
			AddTag("job_id", r.JobID).
			AddTag("service_type", r.ServiceType).
			AddTag("result", string(r.Result)).
			AddTag("component", "dispatch_engine").
			AddField("waves", r.Waves).
			AddField("notified", r.Notified).
			AddField("duration_s", round3(r.Duration.Seconds())).
			SetTime(r.Time)
		if r.AcceptedBy != "" {
			p.AddTag("accepted_by", r.AcceptedBy)
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil
	}
	return s.write(10*time.Second, points...)
}

// RecordWave writes a dispatch_wave point.
func (s *InfluxSink) RecordWave(ev coremetrics.WaveEvent) error {
	p := write.NewPointWithMeasurement("dispatch_wave").
		AddTag("job_id", ev.JobID).
		AddTag("wave", strconv.Itoa(ev.Wave)).
		AddTag("lookup_failed", strconv.FormatBool(ev.Failed)).
		AddField("max_radius_m", round3(ev.MaxRadiusM)).
		AddField("candidates", ev.Candidates).
		SetTime(ev.Time)
	return s.write(5*time.Second, p)
}

// RecordOffer writes a hero_offer point.
func (s *InfluxSink) RecordOffer(ev coremetrics.OfferEvent) error {
	p := write.NewPointWithMeasurement("hero_offer").
		AddTag("job_id", ev.JobID).
		AddTag("hero_id", ev.HeroID).
		AddTag("wave", strconv.Itoa(ev.Wave)).
		AddTag("delivered", strconv.FormatBool(ev.Delivered)).
		AddField("score", round3(ev.Score)).
		AddField("distance_m", round3(ev.DistanceM)).
		SetTime(ev.Time)
	return s.write(5*time.Second, p)
}

// RecordAnswer writes a hero_answer point.
func (s *InfluxSink) RecordAnswer(ev coremetrics.AnswerEvent) error {
	p := write.NewPointWithMeasurement("hero_answer").
		AddTag("job_id", ev.JobID).
		AddTag("hero_id", ev.HeroID).
		AddTag("accepted", strconv.FormatBool(ev.Accepted)).
		AddTag("outcome", ev.Outcome).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(5*time.Second, p)
}

// RecordFleetSize writes the number of available heroes.
func (s *InfluxSink) RecordFleetSize(size int) error {
	p := write.NewPointWithMeasurement("fleet_size").
		AddTag("component", "cleanup").
		AddField("heroes", size).
		SetTime(time.Now())
	return s.write(5*time.Second, p)
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
