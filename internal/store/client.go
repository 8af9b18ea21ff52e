package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	opterrors "github.com/lebinh/s3opt/errors"
	"github.com/lebinh/s3opt/internal/store/s3api"
)

// Client is the S3-backed gateway. It wraps one aws-sdk-go-v2 S3 client;
// obtain one per worker through a Pool rather than sharing a single handle.
type Client struct {
	s3  s3api.S3API
	log zerolog.Logger
}

// New creates a new store client with the provided options.
// It loads AWS credentials using the default credential chain
// and applies the specified configuration options.
//
// Example:
//
//	st, err := store.New(
//	    store.WithRegion("us-west-2"),
//	    store.WithMaxRetries(3),
//	)
func New(opts ...Option) (*Client, error) {
	clientCfg := &ClientConfig{
		MaxRetries: 3,
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(clientCfg)
	}

	var cfg aws.Config
	var err error

	if clientCfg.CustomAWSConfig != nil {
		cfg = *clientCfg.CustomAWSConfig
	} else {
		var loadOpts []func(*config.LoadOptions) error
		if clientCfg.Profile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(clientCfg.Profile))
		}
		if clientCfg.AccessKey != "" && clientCfg.SecretKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(clientCfg.AccessKey, clientCfg.SecretKey, ""),
			))
		}
		cfg, err = config.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, opterrors.NewError("client initialization", err)
		}
	}

	// Apply region from options if specified, otherwise ensure a region is set
	if clientCfg.Region != "" {
		cfg.Region = clientCfg.Region
	} else if cfg.Region == "" {
		cfg.Region = "us-east-1" // AWS default region
	}

	if clientCfg.MaxRetries > 0 {
		cfg.RetryMaxAttempts = clientCfg.MaxRetries
	}

	var s3Opts []func(*s3.Options)

	if clientCfg.Endpoint != "" {
		endpoint := clientCfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			// S3-compatible stores generally do not support virtual hosting
			o.UsePathStyle = true
		})
	}

	if clientCfg.HTTPClient != nil {
		httpClient := clientCfg.HTTPClient
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	return &Client{
		s3:  s3.NewFromConfig(cfg, s3Opts...),
		log: clientCfg.Logger,
	}, nil
}

// NewWithClient creates a store client around a custom S3API implementation.
// This is primarily used for testing with mocked clients.
func NewWithClient(s3Client s3api.S3API, opts ...Option) *Client {
	clientCfg := &ClientConfig{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(clientCfg)
	}
	return &Client{
		s3:  s3Client,
		log: clientCfg.Logger,
	}
}

// Verify the client satisfies the gateway contract.
var _ Store = (*Client)(nil)
