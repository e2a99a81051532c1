package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GetGCSClient opens a Cloud Storage client. ADC is used unless GCS_CREDENTIALS_JSON is set.
func GetGCSClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// UploadBytesToGCS writes data to bucket/objectName and returns the object's access URL.
func UploadBytesToGCS(ctx context.Context, bucketName string, objectName string, data []byte, contentType string) (string, error) {
	if strings.TrimSpace(bucketName) == "" {
		return "", errors.New("gcs bucket is required")
	}
	client, err := GetGCSClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("failed to upload bytes to Google Cloud Storage: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}
	return BuildObjectAccessURL(bucketName, objectName), nil
}

// BuildObjectAccessURL prefers STORAGE_ACCESS_BASE_URL ("{objectKey}" is substituted when
// present), then GCS_URL, then the gs:// form.
func BuildObjectAccessURL(bucketName string, objectKey string) string {
	if base := strings.TrimSpace(os.Getenv("STORAGE_ACCESS_BASE_URL")); base != "" {
		if strings.Contains(base, "{objectKey}") {
			return strings.ReplaceAll(base, "{objectKey}", objectKey)
		}
		return strings.TrimRight(base, "/") + "/" + objectKey
	}
	if gcsURL := strings.TrimSpace(os.Getenv("GCS_URL")); gcsURL != "" {
		return "https://" + gcsURL + "/" + bucketName + "/" + objectKey
	}
	return "gs://" + bucketName + "/" + objectKey
}
