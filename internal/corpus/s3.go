package corpus

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used by S3Provider.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Provider enumerates corpus objects stored under a bucket prefix.
type S3Provider struct {
	client    S3API
	bucket    string
	prefix    string
	extension string
	logger    *zap.Logger
}

// S3Config selects the bucket and, for S3-compatible stores, the endpoint.
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Provider returns a provider listing objects in bucket under prefix whose key ends with extension.
func NewS3Provider(client S3API, bucket, prefix, extension string, opts ...Option) *S3Provider {
	if extension == "" {
		extension = DefaultExtension
	}
	o := buildOptions(opts)
	return &S3Provider{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		extension: extension,
		logger:    o.logger,
	}
}

// Walk lists every matching object and downloads it. Listing failures are errors;
// objects that cannot be fetched are logged and skipped.
func (p *S3Provider) Walk(ctx context.Context) ([]Entry, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(p.bucket)}
	if p.prefix != "" {
		input.Prefix = aws.String(p.prefix)
	}
	var entries []Entry
	pager := s3.NewListObjectsV2Paginator(p.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", p.bucket, p.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, p.extension) {
				continue
			}
			body, err := p.fetch(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				p.logger.Warn("skipping unreadable corpus object", zap.String("key", key), zap.Error(err))
				continue
			}
			id := strings.TrimPrefix(strings.TrimPrefix(key, p.prefix), "/")
			entries = append(entries, Entry{Path: id, Contents: body})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (p *S3Provider) fetch(ctx context.Context, key string) (string, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
