// Package s3 streams input tables from S3 (or any S3-compatible endpoint).
package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
)

// Scheme prefixes S3 locations.
const Scheme = "s3://"

// Config holds connection settings. Credentials come from the standard
// AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY environment variables.
type Config struct {
	Region   string
	Endpoint string // optional, e.g. a MinIO URL
}

// ConfigFromEnv reads AWS_DEFAULT_REGION and S3_ENDPOINT. A nil getenv
// uses os.Getenv.
func ConfigFromEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	region := getenv("AWS_DEFAULT_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return Config{Region: region, Endpoint: getenv("S3_ENDPOINT")}
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return "", "", fmt.Errorf("s3: not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3: uri %q needs both bucket and key", uri)
	}
	return bucket, key, nil
}

// getter is the part of the S3 API the source uses.
type getter interface {
	GetObjectWithContext(ctx aws.Context, in *awss3.GetObjectInput, opts ...request.Option) (*awss3.GetObjectOutput, error)
}

// Source streams one S3 object.
type Source struct {
	bucket, key string
	cfg         Config
	client      getter
}

// FromURI returns a Source for s3://bucket/key.
func FromURI(uri string, cfg Config) (*Source, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return &Source{bucket: bucket, key: key, cfg: cfg}, nil
}

func (s *Source) connect() (getter, error) {
	if s.client != nil {
		return s.client, nil
	}
	awsCfg := &aws.Config{
		Region:      aws.String(s.cfg.Region),
		Credentials: credentials.NewEnvCredentials(),
	}
	if s.cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(s.cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("error making new session: %w", err)
	}
	s.client = awss3.New(sess)
	return s.client, nil
}

// Open starts a streaming GET of the object.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	out, err := c.GetObjectWithContext(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return out.Body, nil
}
