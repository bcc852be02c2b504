package aws_s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// BucketManager creates and tears down the archive bucket.
type BucketManager struct {
	S3Client *s3.Client
	region   string
}

// NewBucketManager returns a BucketManager for the given region.
func NewBucketManager(s3Client *s3.Client, region string) (*BucketManager, error) {
	if s3Client == nil {
		return nil, fmt.Errorf("s3Client parameter can't be nil")
	}
	return &BucketManager{S3Client: s3Client, region: region}, nil
}

// CreateArchiveBucket creates the archive bucket if it doesn't already exist.
func (mb *BucketManager) CreateArchiveBucket(ctx context.Context, bucketName string) error {
	_, err := mb.S3Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
		CreateBucketConfiguration: &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(mb.region),
		},
	})
	if err != nil {
		return fmt.Errorf("couldn't create archive bucket %s in region %s: %w", bucketName, mb.region, err)
	}
	return nil
}

// RemoveArchiveBucket deletes the archive bucket.
func (mb *BucketManager) RemoveArchiveBucket(ctx context.Context, bucketName string) error {
	_, err := mb.S3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		return fmt.Errorf("couldn't remove archive bucket %s: %w", bucketName, err)
	}
	return nil
}
