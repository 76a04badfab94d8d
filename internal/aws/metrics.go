package aws

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/storeops/cart-recovery/internal/abandonment"
)

// SweepMetrics emits per-tick sweep counters to CloudWatch. Emission is
// best effort: a failed put is logged and the sweep result stands.
type SweepMetrics struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewSweepMetrics returns an emitter publishing under the given
// namespace.
func NewSweepMetrics(client CloudWatchAPI, namespace string, logger *slog.Logger) *SweepMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepMetrics{client: client, namespace: namespace, logger: logger}
}

// EmitSweep implements abandonment.MetricsEmitter.
func (m *SweepMetrics) EmitSweep(ctx context.Context, report abandonment.Report) {
	now := time.Now()
	datum := func(name string, value float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: &name,
			Value:      &value,
			Unit:       unit,
			Timestamp:  &now,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{
			datum("CartsAbandoned", float64(report.CartsAbandoned), cwtypes.StandardUnitCount),
			datum("CheckoutsAbandoned", float64(report.CheckoutsAbandoned), cwtypes.StandardUnitCount),
			datum("SweepDuration", float64(report.Duration.Milliseconds()), cwtypes.StandardUnitMilliseconds),
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("put sweep metrics", "error", err)
	}
}
