package e2e

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient reads back what the dispatch service wrote to InfluxDB.
type InfluxClient struct {
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

func NewInfluxClient(url, org, bucket, token string) *InfluxClient {
	c := influxdb2.NewClient(url, token)
	return &InfluxClient{bucket: bucket, client: c, query: c.QueryAPI(org)}
}

// DispatchResults returns the result tag of every dispatch_result point
// written for jobID in the last hour.
func (c *InfluxClient) DispatchResults(ctx context.Context, jobID string) ([]string, error) {
	flux := fmt.Sprintf(`from(bucket:%q)
  |> range(start: -1h)
  |> filter(fn: (r) => r._measurement == "dispatch_result" and r.job_id == %q and r._field == "waves")`, c.bucket, jobID)
	res, err := c.query.Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	var out []string
	for res.Next() {
		if v, ok := res.Record().ValueByKey("result").(string); ok {
			out = append(out, v)
		}
	}
	return out, res.Err()
}

func (c *InfluxClient) Close() { c.client.Close() }
