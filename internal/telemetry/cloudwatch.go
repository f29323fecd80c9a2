// Package telemetry publishes service counters to AWS CloudWatch.
// Publishing is fire-and-forget: a metric failure is logged and never
// surfaces to the request path.
package telemetry

import (
	"context"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"larder/internal/config"
	"larder/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Publisher emits count metrics to CloudWatch under the service namespace.
// It satisfies the MetricsRecorder interfaces declared by the reconciler,
// the gate, and the billing handler.
type Publisher struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewPublisher builds a Publisher from service configuration. Returns nil
// (a no-op for all callers, which check for nil) when telemetry is disabled.
func NewPublisher(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}

	return NewPublisherWithClient(cloudwatch.NewFromConfig(awsCfg), logger), nil
}

// NewPublisherWithClient creates a Publisher with an injected client.
func NewPublisherWithClient(client CloudWatchClient, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// Count emits a count-of-one metric with the given dimensions.
func (p *Publisher) Count(ctx context.Context, name string, dims map[string]string) {
	datum := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: toDimensions(dims),
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.Error("failed to publish metric",
			"metric", name,
			"error", err.Error(),
		)
	}
}

// toDimensions converts a dimension map into CloudWatch dimensions with a
// stable order.
func toDimensions(dims map[string]string) []cwtypes.Dimension {
	if len(dims) == 0 {
		return nil
	}
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		out = append(out, cwtypes.Dimension{
			Name:  aws.String(k),
			Value: aws.String(dims[k]),
		})
	}
	return out
}
