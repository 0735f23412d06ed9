package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/rs/zerolog/log"
)

var ErrExportDisabled = errors.New("note export is not configured")

// Exporter writes an exported document to blob storage and returns its URI.
type Exporter interface {
	Export(ctx context.Context, object string, data []byte) (string, error)
}

// ExportObjectName names the export of one profile at a point in time.
func ExportObjectName(profileID uint, at time.Time) string {
	return fmt.Sprintf("notes/%d/%s.json", profileID, at.UTC().Format("20060102T150405Z"))
}

// GCSExporter uploads exports to a Google Cloud Storage bucket.
type GCSExporter struct {
	Bucket string
}

func (e *GCSExporter) Export(ctx context.Context, object string, data []byte) (string, error) {
	log.Debug().Str("bucket", e.Bucket).Str("object", object).Msg("uploading export to cloud storage")

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	wc := client.Bucket(e.Bucket).Object(object).NewWriter(ctx)
	wc.ContentType = "application/json"
	if _, err = io.Copy(wc, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("Writer.Close: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", e.Bucket, object), nil
}

// AzureExporter uploads exports to an Azure Storage blob container.
type AzureExporter struct {
	Account   string
	Key       string
	Container string
}

func (e *AzureExporter) Export(ctx context.Context, object string, data []byte) (string, error) {
	log.Debug().Str("container", e.Container).Str("object", object).Msg("uploading export to azure storage")

	cred, err := azblob.NewSharedKeyCredential(e.Account, e.Key)
	if err != nil {
		return "", fmt.Errorf("azblob.NewSharedKeyCredential: %w", err)
	}
	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", e.Account, e.Container))
	if err != nil {
		return "", err
	}
	container := azblob.NewContainerURL(*u, azblob.NewPipeline(cred, azblob.PipelineOptions{}))
	blob := container.NewBlockBlobURL(object)

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	_, err = azblob.UploadBufferToBlockBlob(ctx, data, blob, azblob.UploadToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("azblob.UploadBufferToBlockBlob: %w", err)
	}

	burl := blob.URL()
	return burl.String(), nil
}

// NewExporter picks the export backend; it returns ErrExportDisabled when no
// backend is configured.
func NewExporter(backend, bucket, azureAccount, azureKey string) (Exporter, error) {
	switch backend {
	case "":
		return nil, ErrExportDisabled
	case "gcs":
		if bucket == "" {
			return nil, errors.New("gcs export needs a bucket")
		}
		return &GCSExporter{Bucket: bucket}, nil
	case "azure":
		if bucket == "" || azureAccount == "" || azureKey == "" {
			return nil, errors.New("azure export needs an account, key and container")
		}
		return &AzureExporter{Account: azureAccount, Key: azureKey, Container: bucket}, nil
	default:
		return nil, fmt.Errorf("unknown export backend %q", backend)
	}
}
