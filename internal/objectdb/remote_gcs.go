package objectdb

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
)

// gcsStore serves cache entries from a Google Cloud Storage bucket using
// Application Default Credentials.
type gcsStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

func newGCSStore(ctx context.Context, bucket, prefix string) (*gcsStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &gcsStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *gcsStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *gcsStore) Put(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(s.key(key)).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	return nil
}

func (s *gcsStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.key(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("gcs get %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("gcs get %s: %w", key, err)
	}
	return data, true, nil
}
