// Package aws_s3 implements the cold-archive tier: documents a deferred
// garbage collector has swept out of the durable document table are written
// here before being dropped entirely, so they remain recoverable for a
// retention window instead of vanishing the moment they're unreferenced.
package aws_s3

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the endpoint and credentials for the archive bucket's S3-API backend.
type Config struct {
	HostEndpointUrl string
	Region          string
	Username        string
	Password        string
}

// Connect opens an S3 client against the configured endpoint.
func Connect(config Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: config.Region}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(config.HostEndpointUrl)
		o.Credentials = credentials.NewStaticCredentialsProvider(config.Username, config.Password, "")
	})
}
