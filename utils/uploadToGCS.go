package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var ErrStorageNotConfigured = errors.New("GCS_BUCKET is not set")

func StorageConfigured() bool {
	return os.Getenv("GCS_BUCKET") != ""
}

func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); credJSON != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// UploadBytesToGCS writes data to objectName in GCS_BUCKET.
func UploadBytesToGCS(ctx context.Context, objectName string, data []byte, contentType string) error {
	bucket := os.Getenv("GCS_BUCKET")
	if bucket == "" {
		return ErrStorageNotConfigured
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return fmt.Errorf("storage client: %w", err)
	}
	defer client.Close()

	w := client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", objectName, err)
	}
	return nil
}

func DownloadFromGCS(ctx context.Context, objectName string) ([]byte, error) {
	bucket := os.Getenv("GCS_BUCKET")
	if bucket == "" {
		return nil, ErrStorageNotConfigured
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// DeleteFromGCS treats a missing object as already deleted.
func DeleteFromGCS(ctx context.Context, objectName string) error {
	bucket := os.Getenv("GCS_BUCKET")
	if bucket == "" {
		return ErrStorageNotConfigured
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return fmt.Errorf("storage client: %w", err)
	}
	defer client.Close()

	if err := client.Bucket(bucket).Object(objectName).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}
