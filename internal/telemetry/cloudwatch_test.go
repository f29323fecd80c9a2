package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/config"
	"larder/internal/types"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestCountEmitsDatum(t *testing.T) {
	client := &mockCloudWatch{}
	p := NewPublisherWithClient(client, nil)

	p.Count(context.Background(), types.MetricWebhookProcessed, map[string]string{
		"event_type": "invoice.paid",
		"tier":       "pro",
	})

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, types.MetricNamespace, *input.Namespace)

	require.Len(t, input.MetricData, 1)
	datum := input.MetricData[0]
	assert.Equal(t, types.MetricWebhookProcessed, *datum.MetricName)
	assert.Equal(t, float64(1), *datum.Value)

	// Dimensions come out in stable (sorted) order.
	require.Len(t, datum.Dimensions, 2)
	assert.Equal(t, "event_type", *datum.Dimensions[0].Name)
	assert.Equal(t, "tier", *datum.Dimensions[1].Name)
	assert.Equal(t, "pro", *datum.Dimensions[1].Value)
}

func TestCountSwallowsPublishFailure(t *testing.T) {
	client := &mockCloudWatch{err: errors.New("throttled")}
	p := NewPublisherWithClient(client, nil)

	// Must not panic or propagate; telemetry never blocks the request path.
	p.Count(context.Background(), types.MetricGateDenied, nil)
	assert.Len(t, client.inputs, 1)
}

func TestCountNoDimensions(t *testing.T) {
	client := &mockCloudWatch{}
	p := NewPublisherWithClient(client, nil)

	p.Count(context.Background(), types.MetricCheckoutStarted, nil)

	require.Len(t, client.inputs, 1)
	assert.Empty(t, client.inputs[0].MetricData[0].Dimensions)
}

func TestNewPublisherDisabled(t *testing.T) {
	p, err := NewPublisher(context.Background(), config.TelemetryConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}
