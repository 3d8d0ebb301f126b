package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// AmazonS3Storage stores objects in an S3 bucket
type AmazonS3Storage struct {
	bucket   string
	prefix   string
	s3Client *s3.S3
	uploader *s3manager.Uploader
}

// NewAmazonS3Storage creates a new Amazon S3 storage provider
func NewAmazonS3Storage() *AmazonS3Storage {
	return &AmazonS3Storage{}
}

// Initialize requires "region" and "bucket"; "prefix", "endpoint",
// "accessKey" and "secretKey" are optional. Without keys the default
// credential chain is used.
func (a *AmazonS3Storage) Initialize(config map[string]string) error {
	region := config["region"]
	if region == "" {
		return errors.New("region is required for Amazon S3 storage")
	}

	a.bucket = config["bucket"]
	if a.bucket == "" {
		return errors.New("bucket is required for Amazon S3 storage")
	}
	a.prefix = config["prefix"]

	awsConfig := &aws.Config{Region: aws.String(region)}
	if accessKey, secretKey := config["accessKey"], config["secretKey"]; accessKey != "" && secretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}
	if endpoint := config["endpoint"]; endpoint != "" {
		// S3-compatible stores (minio, localstack) need path-style addressing
		awsConfig.Endpoint = aws.String(endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}

	a.s3Client = s3.New(sess)
	a.uploader = s3manager.NewUploader(sess)
	return nil
}

// Store uploads content to S3
func (a *AmazonS3Storage) Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	key := objectID(a.prefix, name)

	s3Metadata := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		s3Metadata[k] = aws.String(v)
	}

	input := &s3manager.UploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(key),
		Body:     content,
		Metadata: s3Metadata,
	}
	if ct := metadata[MetaContentType]; ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := a.uploader.UploadWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return key, nil
}

// Retrieve streams an object from S3
func (a *AmazonS3Storage) Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error) {
	output, err := a.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to retrieve object from S3: %w", err)
	}

	return output.Body, flattenMetadata(output.Metadata), nil
}

// Delete removes an object from S3
func (a *AmazonS3Storage) Delete(ctx context.Context, id string) error {
	_, err := a.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// List returns objects under the storage prefix plus prefix
func (a *AmazonS3Storage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix + prefix),
	}

	var files []FileInfo
	err := a.s3Client.ListObjectsV2PagesWithContext(ctx, input, func(output *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range output.Contents {
			head, err := a.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				continue
			}

			metadata := flattenMetadata(head.Metadata)
			name := metadata[MetaFileName]
			if name == "" {
				name = path.Base(aws.StringValue(obj.Key))
			}

			files = append(files, FileInfo{
				ID:          aws.StringValue(obj.Key),
				Name:        name,
				Size:        aws.Int64Value(obj.Size),
				ContentType: aws.StringValue(head.ContentType),
				ModifiedAt:  aws.TimeValue(obj.LastModified).Unix(),
				Metadata:    metadata,
			})
		}
		return !lastPage
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects from S3: %w", err)
	}

	return files, nil
}

// GetSignedURL returns a presigned GET (or PUT for operation "write") URL
func (a *AmazonS3Storage) GetSignedURL(ctx context.Context, id string, expiryMinutes int, operation string) (string, error) {
	duration := time.Duration(expiryMinutes) * time.Minute

	var presign interface{ Presign(time.Duration) (string, error) }
	if operation == "write" {
		req, _ := a.s3Client.PutObjectRequest(&s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(id),
		})
		presign = req
	} else {
		req, _ := a.s3Client.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(id),
		})
		presign = req
	}

	url, err := presign.Presign(duration)
	if err != nil {
		return "", fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return url, nil
}

// S3 canonicalizes user metadata keys ("filename" -> "Filename"), so lookups
// are normalized back to the lowercase-first keys the rest of the code uses.
func flattenMetadata(in map[string]*string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		switch {
		case strings.EqualFold(k, MetaFileName):
			out[MetaFileName] = *v
		case strings.EqualFold(k, MetaContentType):
			out[MetaContentType] = *v
		default:
			out[k] = *v
		}
	}
	return out
}
