package store

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBlobStore reads/writes Cloud Storage objects, adapted from the
// teacher's pkg/infrastructure/storage.StorageAdapter. It backs
// gpxio.Resolve for gs://-referenced GPX tracks; this service never
// writes a provider GPS trace to it (spec §3 non-goal) — only the
// caller-supplied large-track path writes here, via Write, when a
// presentation-layer upload chooses to offload before calling the core.
type GCSBlobStore struct {
	Client *storage.Client
}

// NewGCSBlobStore wraps an already-connected Cloud Storage client.
func NewGCSBlobStore(client *storage.Client) *GCSBlobStore {
	return &GCSBlobStore{Client: client}
}

func (s *GCSBlobStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	rc, err := s.Client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: read gs://%s/%s: %w", bucket, object, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *GCSBlobStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	wc := s.Client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		return fmt.Errorf("store: write gs://%s/%s: %w", bucket, object, err)
	}
	return wc.Close()
}
