package observability

const (
	DefaultServiceName = "dygram"
	DefaultMetricsPath = "/metrics"
)
