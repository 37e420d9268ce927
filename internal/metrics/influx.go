package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxClient reads telegraf procstat CPU usage through a Flux mean.
type InfluxClient struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	bucket   string
	window   time.Duration
}

func NewInfluxClient(url, token, org, bucket string, window time.Duration) *InfluxClient {
	client := influxdb2.NewClient(url, token)
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &InfluxClient{
		client:   client,
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
		window:   window,
	}
}

func (c *InfluxClient) CPUUtilization(ctx context.Context, service string) (float64, error) {
	query := fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == "procstat" and r._field == "cpu_usage" and r.process_name == %q)
  |> mean()`, c.bucket, c.window, service)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, unavailable("influx query: %v", err)
	}
	defer func() { _ = result.Close() }()

	found := false
	var percent float64
	for result.Next() {
		if v, ok := result.Record().Value().(float64); ok {
			percent = v
			found = true
		}
	}
	if result.Err() != nil {
		return 0, unavailable("reading influx results: %v", result.Err())
	}
	if !found {
		return 0, unavailable("no samples for %s", service)
	}

	// procstat reports percent of one core
	return percent / 100, nil
}

// Close releases the underlying HTTP client.
func (c *InfluxClient) Close() {
	c.client.Close()
}
