package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/voicegate/pkg/storage"
)

// openVoiceprints resolves the --voiceprints spec into a file store:
// either a local directory or an s3://bucket/prefix URL.
func openVoiceprints(spec string) (storage.FileStore, error) {
	if spec == "" {
		return nil, fmt.Errorf("voiceprints location is required (--voiceprints, VOICEGATE_VOICEPRINTS, or config file)")
	}
	if rest, ok := strings.CutPrefix(spec, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid s3 location %q", spec)
		}
		return storage.NewS3(newS3Client(), bucket, prefix), nil
	}
	return storage.NewLocal(spec)
}

// newS3Client builds an S3 client from the standard AWS environment
// variables. AWS_ENDPOINT_URL supports S3-compatible stores like MinIO.
func newS3Client() *s3.Client {
	opts := s3.Options{
		Region: os.Getenv("AWS_REGION"),
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			}, nil
		}),
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}
