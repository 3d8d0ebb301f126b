package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GoogleCloudStorage stores objects in a GCS bucket
type GoogleCloudStorage struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGoogleCloudStorage creates a new Google Cloud Storage provider
func NewGoogleCloudStorage() *GoogleCloudStorage {
	return &GoogleCloudStorage{}
}

// Initialize requires "bucket"; "credentialFile" and "prefix" are optional
func (g *GoogleCloudStorage) Initialize(config map[string]string) error {
	g.bucketName = config["bucket"]
	if g.bucketName == "" {
		return errors.New("bucket is required for Google Cloud Storage")
	}
	g.prefix = config["prefix"]

	var opts []option.ClientOption
	if credFile := config["credentialFile"]; credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create Google Cloud Storage client: %w", err)
	}
	g.client = client
	return nil
}

func (g *GoogleCloudStorage) object(id string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucketName).Object(id)
}

// Store writes content to a new GCS object
func (g *GoogleCloudStorage) Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	objectName := objectID(g.prefix, name)

	writer := g.object(objectName).NewWriter(ctx)
	writer.Metadata = metadata
	writer.ContentType = metadata[MetaContentType]

	if _, err := io.Copy(writer, content); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write object content to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object upload to GCS: %w", err)
	}

	return objectName, nil
}

// Retrieve opens a GCS object
func (g *GoogleCloudStorage) Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error) {
	obj := g.object(id)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get object attributes from GCS: %w", err)
	}

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open object from GCS: %w", err)
	}

	return reader, attrs.Metadata, nil
}

// Delete removes a GCS object
func (g *GoogleCloudStorage) Delete(ctx context.Context, id string) error {
	if err := g.object(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete object from GCS: %w", err)
	}
	return nil
}

// List returns objects under the storage prefix plus prefix
func (g *GoogleCloudStorage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	it := g.client.Bucket(g.bucketName).Objects(ctx, &storage.Query{Prefix: g.prefix + prefix})

	var files []FileInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects from GCS: %w", err)
		}

		name := attrs.Metadata[MetaFileName]
		if name == "" {
			name = path.Base(attrs.Name)
		}

		files = append(files, FileInfo{
			ID:          attrs.Name,
			Name:        name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			ModifiedAt:  attrs.Updated.Unix(),
			Metadata:    attrs.Metadata,
		})
	}

	return files, nil
}

// GetSignedURL returns a V4 signed URL for GET, or PUT when operation is "write"
func (g *GoogleCloudStorage) GetSignedURL(ctx context.Context, id string, expiryMinutes int, operation string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(time.Duration(expiryMinutes) * time.Minute),
	}
	if operation == "write" {
		opts.Method = http.MethodPut
	}

	url, err := g.client.Bucket(g.bucketName).SignedURL(id, opts)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}
