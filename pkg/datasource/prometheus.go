package datasource

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/opscart/index-maint/pkg/models"
)

// Default metric names published by the index exporter
const (
	DefaultFragmentationMetric = "index_fragmentation_percent"
	DefaultSizeMetric          = "index_size_pages"
)

// PrometheusSource reads index metrics that an exporter already publishes,
// which avoids scanning physical stats on busy servers. Series are expected
// to carry database, schema, object, object_kind, index and index_type
// labels; object_kind is "table" or "view".
type PrometheusSource struct {
	client              v1.API
	url                 string
	fragmentationMetric string
	sizeMetric          string
	logger              *slog.Logger
}

func NewPrometheusSource(url string, logger *slog.Logger) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PrometheusSource{
		client:              v1.NewAPI(client),
		url:                 url,
		fragmentationMetric: DefaultFragmentationMetric,
		sizeMetric:          DefaultSizeMetric,
		logger:              logger,
	}, nil
}

// WithMetricNames overrides the fragmentation and size metric names
func (p *PrometheusSource) WithMetricNames(fragmentation, size string) *PrometheusSource {
	if fragmentation != "" {
		p.fragmentationMetric = fragmentation
	}
	if size != "" {
		p.sizeMetric = size
	}
	return p
}

// FetchStructures joins the fragmentation and size series of one target
func (p *PrometheusSource) FetchStructures(ctx context.Context, target models.Target, kind models.ObjectKind) ([]models.RawStructure, error) {
	selector := fmt.Sprintf(`{database=%s,object_kind=%s}`, strconv.Quote(target.Name), strconv.Quote(kindLabel(kind)))

	fragmentation, err := p.queryVector(ctx, p.fragmentationMetric+selector)
	if err != nil {
		return nil, fmt.Errorf("fragmentation query failed: %w", err)
	}
	sizes, err := p.queryVector(ctx, p.sizeMetric+selector)
	if err != nil {
		return nil, fmt.Errorf("size query failed: %w", err)
	}

	sizeByKey := make(map[string]float64, len(sizes))
	for _, sample := range sizes {
		sizeByKey[seriesKey(sample.Metric)] = float64(sample.Value)
	}

	var structures []models.RawStructure
	for _, sample := range fragmentation {
		size, ok := sizeByKey[seriesKey(sample.Metric)]
		if !ok {
			// No size series means the exporter skipped it; nothing to act on
			continue
		}
		structures = append(structures, models.RawStructure{
			Schema:               string(sample.Metric["schema"]),
			Object:               string(sample.Metric["object"]),
			Kind:                 kind,
			Index:                string(sample.Metric["index"]),
			IndexType:            string(sample.Metric["index_type"]),
			FragmentationPercent: float64(sample.Value),
			SizeUnits:            int64(size),
			Disabled:             sample.Metric["disabled"] == "true",
		})
	}

	return structures, nil
}

func (p *PrometheusSource) queryVector(ctx context.Context, query string) (model.Vector, error) {
	result, warnings, err := p.client.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if len(warnings) > 0 {
		p.logger.Warn("Prometheus returned warnings", "query", query, "warnings", warnings)
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s for query: %s", result.Type(), query)
	}
	return vector, nil
}

// IsAvailable reports whether the Prometheus server answers queries
func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "Prometheus"
}

func kindLabel(kind models.ObjectKind) string {
	if kind == models.ObjectView {
		return "view"
	}
	return "table"
}

func seriesKey(m model.Metric) string {
	return fmt.Sprintf("%s\x00%s\x00%s", m["schema"], m["object"], m["index"])
}
