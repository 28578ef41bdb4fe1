package s3

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bnema/transcoder/internal/infrastructure/logger"
	"github.com/bnema/transcoder/internal/port"
)

type Config struct {
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Publisher mirrors finished derivatives into an S3 bucket under Prefix,
// keyed by derivative name.
type Publisher struct {
	bucket   string
	prefix   string
	uploader uploader
}

// NewPublisher builds an uploader for cfg. Static keys win when set;
// otherwise the default AWS credential chain applies (environment, shared
// config, instance or task role).
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Publisher{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: manager.NewUploader(s3.NewFromConfig(awsCfg)),
	}, nil
}

func loadOptions(cfg Config) []func(*awsconfig.LoadOptions) error {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	return opts
}

func (p *Publisher) Key(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

func (p *Publisher) Publish(ctx context.Context, name, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open derivative: %w", err)
	}
	defer func() { _ = f.Close() }()

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.Key(name)),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := p.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload %s to bucket %s: %w", p.Key(name), p.bucket, err)
	}

	logger.Info.Printf("published %s to s3://%s/%s", logger.SanitizeForLog(name), p.bucket, p.Key(name))
	return nil
}

var _ port.Publisher = (*Publisher)(nil)
