package telemetry

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is the name of the service
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Environment is the deployment environment (dev, staging, production)
	Environment string

	// Enabled determines whether tracing is enabled
	// When false, a noop tracer is used
	Enabled bool

	// Endpoint is the OTLP/HTTP collector endpoint as host:port.
	// If empty, spans are recorded but not exported.
	Endpoint string

	// Insecure sends spans over plain HTTP.
	Insecure bool

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	// 1.0 means all traces are sampled
	SampleRate float64
}

// DefaultConfig returns the tracing defaults. Tracing is off unless
// configured.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "stepwise",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
	}
}
