package gcs

import (
	"context"
)

// ObjectStore provides an interface for durable object storage writes.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// PutObject stores data under key with the given content type and cache-control directive.
	PutObject(ctx context.Context, key string, data []byte, contentType, cacheControl string) error
}
