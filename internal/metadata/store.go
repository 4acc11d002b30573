package metadata

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
	"github.com/iliyamo/nft-ticket-registry/internal/config"
)

var ErrUploadFailed = apperr.New(apperr.TransientNetwork, "metadata: upload failed", "Ticket details could not be saved. Nothing was issued; please try again.")

// Store keeps an uploaded document and returns a URI for it.
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes content-addressed objects: the key is the sha256 of the
// body, so re-uploading the same document is harmless.
type S3Store struct {
	client  putObjectAPI
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Store builds a store from static credentials, pointing at a custom
// endpoint when one is configured (MinIO in development).
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client putObjectAPI, cfg config.S3Config) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

func (s *S3Store) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	sum := sha256.Sum256(data)
	key := path.Join(s.prefix, hex.EncodeToString(sum[:])+extFor(contentType))

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %v", ErrUploadFailed, key, err)
	}
	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func extFor(contentType string) string {
	if strings.HasPrefix(contentType, "application/json") {
		return ".json"
	}
	return ""
}
