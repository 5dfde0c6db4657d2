package newsletter

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"dailybrief/internal/types"
)

// Metric and dimension names emitted per run.
const (
	metricSendAttempt  = "SendAttempt"
	metricSendLatency  = "SendLatency"
	metricAudienceSize = "AudienceSize"
	dimResult          = "Result"
)

// RunMetrics records per-recipient and per-run telemetry. Emission failures
// are logged and swallowed; metrics never affect dispatch outcomes.
type RunMetrics interface {
	// RecordSend counts one recipient outcome by result.
	RecordSend(ctx context.Context, status types.OutcomeStatus)
	// RecordSendLatency records the wall time of one recipient's pipeline.
	RecordSendLatency(ctx context.Context, d time.Duration)
	// RecordAudienceSize records the retrieved audience size for the run.
	RecordAudienceSize(ctx context.Context, n int)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRunMetrics implements RunMetrics by emitting metrics to AWS
// CloudWatch under the configured namespace.
type CloudWatchRunMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// Compile-time assertion that CloudWatchRunMetrics implements RunMetrics.
var _ RunMetrics = (*CloudWatchRunMetrics)(nil)

// NewCloudWatchRunMetrics creates a CloudWatchRunMetrics publishing to the
// given namespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRunMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRunMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordSend emits a SendAttempt count metric with a Result dimension.
func (m *CloudWatchRunMetrics) RecordSend(ctx context.Context, status types.OutcomeStatus) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(metricSendAttempt),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{
				Name:  aws.String(dimResult),
				Value: aws.String(string(status)),
			},
		},
	})
}

// RecordSendLatency emits the per-recipient pipeline latency in milliseconds.
func (m *CloudWatchRunMetrics) RecordSendLatency(ctx context.Context, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(metricSendLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// RecordAudienceSize emits the retrieved audience size for the run.
func (m *CloudWatchRunMetrics) RecordAudienceSize(ctx context.Context, n int) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(metricAudienceSize),
		Value:      aws.Float64(float64(n)),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (m *CloudWatchRunMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to emit run metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

// NoopRunMetrics discards all telemetry. Used in local mode and when metrics
// are disabled.
type NoopRunMetrics struct{}

var _ RunMetrics = NoopRunMetrics{}

func (NoopRunMetrics) RecordSend(context.Context, types.OutcomeStatus)  {}
func (NoopRunMetrics) RecordSendLatency(context.Context, time.Duration) {}
func (NoopRunMetrics) RecordAudienceSize(context.Context, int)          {}
