package export

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
)

const parquetContentType = "application/vnd.apache.parquet"

// S3Uploader uploads exported files with the s3 upload manager.
type S3Uploader struct {
	uploader *manager.Uploader
}

// NewS3Uploader creates an uploader from the default aws config chain
// (environment, shared config, instance role). Region overrides the configured one if set.
func NewS3Uploader(ctx context.Context, region string) (*S3Uploader, error) {
	opts := make([]func(*config.LoadOptions) error, 0, 1)
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "can't load aws user config")
	}

	client := s3.NewFromConfig(sdkConfig)
	return &S3Uploader{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.Concurrency = 4
			u.PartSize = 10 * 1024 * 1024
		}),
	}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, bucket, key string, body []byte) (string, error) {
	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(parquetContentType),
	})
	if err != nil {
		return "", errors.WithStack(err)
	}
	return out.Location, nil
}
