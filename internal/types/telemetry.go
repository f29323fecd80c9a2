package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricWebhookProcessed = "WebhookProcessed"
	MetricWebhookIgnored   = "WebhookIgnored"
	MetricWebhookRejected  = "WebhookRejected"
	MetricGateDenied       = "GateDenied"
	MetricUsageIncrement   = "UsageIncrement"
	MetricCheckoutStarted  = "CheckoutStarted"

	// Dimension Keys
	DimEventType = "EventType"
	DimTier      = "Tier"
	DimCounter   = "Counter"
	DimReason    = "Reason"

	// Metric Namespace
	MetricNamespace = "Larder"
)
