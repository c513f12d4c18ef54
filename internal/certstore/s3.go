package certstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 resolves certificates from an S3 bucket, for deployments where the
// renderer writes generated images to object storage instead of local
// disk. Candidate paths become object keys.
type S3 struct {
	client     *s3.Client
	bucket     string
	defaultDir string
}

// NewS3 creates an S3-backed resolver. An empty profile uses the default
// credential chain (IAM role on ECS).
func NewS3(ctx context.Context, bucket, region, profile string) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3{
		client:     s3.NewFromConfig(cfg),
		bucket:     bucket,
		defaultDir: DefaultDir,
	}, nil
}

// Resolve fetches the first candidate key that exists in the bucket.
func (r *S3) Resolve(ctx context.Context, q Query) ([]byte, string, error) {
	for _, p := range candidates(q, r.defaultDir) {
		key := path.Clean(filepath.ToSlash(p))
		out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			continue
		}
		data, err := io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return nil, "", fmt.Errorf("reading s3 object %s: %w", key, err)
		}
		return data, path.Base(key), nil
	}
	return nil, "", ErrNotFound
}
