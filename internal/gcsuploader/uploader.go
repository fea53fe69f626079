package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/receipt-validator/internal/gcs"
	"google.golang.org/api/option"
)

// uploadTimeout bounds a single object write.
const uploadTimeout = 2 * time.Minute

// NewClient creates the storage client shared by the whole process.
// An empty credentialsFile falls back to Application Default Credentials.
func NewClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return client, nil
}

// Store is the Google Cloud Storage implementation of gcs.ObjectStore.
type Store struct {
	client *storage.Client
	bucket string
}

// NewStore creates a Store writing into bucket with a shared client.
func NewStore(client *storage.Client, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
	}
}

// PutObject uploads data to gs://<bucket>/<key>.
func (s *Store) PutObject(ctx context.Context, key string, data []byte, contentType, cacheControl string) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = cacheControl

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		// Closing after a failed write aborts the upload.
		_ = w.Close()
		return fmt.Errorf("PutObject %s: copy to GCS writer: %w", key, err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("PutObject %s: finalize upload: %w", key, err)
	}

	return nil
}

// URI returns the gs:// URI of key in this store's bucket.
func (s *Store) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, key)
}

var _ gcs.ObjectStore = (*Store)(nil)
