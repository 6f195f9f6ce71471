package telemetry

// Config holds configuration for trace export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables export.
	Endpoint string `mapstructure:"endpoint" default:""`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `mapstructure:"service_name" default:"book-circulation"`
	// Insecure disables TLS towards the collector.
	Insecure bool `mapstructure:"insecure" default:"true"`
	// SampleRatio is the fraction of root traces sampled.
	SampleRatio float64 `mapstructure:"sample_ratio" default:"1"`
}
