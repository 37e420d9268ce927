package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PrometheusClient evaluates a rate-over-window query against the HTTP API.
type PrometheusClient struct {
	api      v1.API
	template string
	window   time.Duration
}

// NewPrometheusClient builds a client. template is a fmt string receiving the
// service name and the window, ex: `rate(process_cpu_seconds_total{job="%s"}[%s])`.
func NewPrometheusClient(address, template string, window time.Duration) (*PrometheusClient, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("prometheus client: %w", err)
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &PrometheusClient{
		api:      v1.NewAPI(client),
		template: template,
		window:   window,
	}, nil
}

func (p *PrometheusClient) CPUUtilization(ctx context.Context, service string) (float64, error) {
	query := fmt.Sprintf(p.template, service, model.Duration(p.window).String())

	value, _, err := p.api.Query(ctx, query, time.Now())
	if err != nil {
		return 0, unavailable("query %q: %v", query, err)
	}

	var v float64
	switch res := value.(type) {
	case model.Vector:
		if len(res) == 0 {
			return 0, unavailable("no samples for %s", service)
		}
		v = float64(res[0].Value)
	case *model.Scalar:
		v = float64(res.Value)
	default:
		return 0, unavailable("unexpected result type %s", value.Type())
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, unavailable("non-finite sample for %s", service)
	}
	return v, nil
}
