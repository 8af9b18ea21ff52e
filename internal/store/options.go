package store

import (
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
)

// ClientConfig holds the configuration produced by functional options.
type ClientConfig struct {
	// Region is the AWS region for S3 operations
	Region string

	// Profile selects a shared-config profile for credential loading
	Profile string

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	// Setting it forces path-style addressing.
	Endpoint string

	// AccessKey and SecretKey configure static credentials. Both must be
	// set; otherwise the default credential chain applies.
	AccessKey string
	SecretKey string

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// HTTPClient overrides the HTTP client used by the SDK
	HTTPClient *http.Client

	// Logger receives debug-level store events
	Logger zerolog.Logger

	// CustomAWSConfig bypasses default configuration loading entirely
	CustomAWSConfig *aws.Config
}

// Option is a functional option for configuring the store client.
type Option func(*ClientConfig)

// WithRegion sets the AWS region for S3 operations.
// If not specified, uses the default AWS region from the credential chain.
func WithRegion(region string) Option {
	return func(c *ClientConfig) {
		c.Region = region
	}
}

// WithProfile selects a named profile from the shared AWS config files.
func WithProfile(profile string) Option {
	return func(c *ClientConfig) {
		c.Profile = profile
	}
}

// WithEndpoint sets a custom S3 endpoint URL and switches to path-style
// addressing. This is useful for S3-compatible services or local testing
// with LocalStack.
func WithEndpoint(endpoint string) Option {
	return func(c *ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithStaticCredentials sets an explicit access key pair instead of the
// default credential chain.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(c *ClientConfig) {
		c.AccessKey = accessKey
		c.SecretKey = secretKey
	}
}

// WithMaxRetries sets the maximum number of retry attempts for failed operations.
// Default is 3 retries. Set to 0 to disable retries.
func WithMaxRetries(maxRetries int) Option {
	return func(c *ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithHTTPClient allows providing a custom HTTP client.
// This gives full control over HTTP behavior including timeouts and proxies.
func WithHTTPClient(client *http.Client) Option {
	return func(c *ClientConfig) {
		c.HTTPClient = client
	}
}

// WithLogger attaches a logger for debug-level store events.
// If not specified, logging is disabled.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
// This overrides the default configuration loading behavior.
func WithAWSConfig(config *aws.Config) Option {
	return func(c *ClientConfig) {
		c.CustomAWSConfig = config
	}
}
