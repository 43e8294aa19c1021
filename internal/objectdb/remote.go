package objectdb

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/treescope/treescope/pkg/index"
)

// remoteTimeout bounds every remote cache request.
const remoteTimeout = 30 * time.Second

// blobStore is the transport beneath a remote cache: opaque bytes by
// string key. HTTP, S3, and GCS implementations live in this package.
type blobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
}

// RemoteCache is an object database served by a remote blob store. Misses
// and transport errors never fail a sync; the caller treats them as cache
// misses.
type RemoteCache struct {
	store blobStore
}

// NewRemoteCache dispatches on the endpoint scheme: http(s)://, s3://, or
// gs://.
func NewRemoteCache(ctx context.Context, endpoint string) (*RemoteCache, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing cache endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http", "https":
		return &RemoteCache{store: newHTTPStore(endpoint)}, nil
	case "s3":
		store, err := newS3Store(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
		if err != nil {
			return nil, err
		}
		return &RemoteCache{store: store}, nil
	case "gs":
		store, err := newGCSStore(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
		if err != nil {
			return nil, err
		}
		return &RemoteCache{store: store}, nil
	default:
		return nil, fmt.Errorf("cache endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
}

func cacheEntryName(hash index.ContentHash) string {
	return hex.EncodeToString(index.EncodeCacheKey(index.ResolveFunctionID, hash))
}

func (r *RemoteCache) Get(hash index.ContentHash) (index.DependencyValue, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()

	data, ok, err := r.store.Get(ctx, cacheEntryName(hash))
	if err != nil || !ok {
		return nil, false, err
	}
	value, err := index.DecodeValue(data)
	if err != nil {
		return nil, false, fmt.Errorf("remote cache get %s: %w", hash, err)
	}
	return value, true, nil
}

func (r *RemoteCache) Insert(hash index.ContentHash, value index.DependencyValue) error {
	encoded, err := index.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("remote cache insert %s: %w", hash, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	return r.store.Put(ctx, cacheEntryName(hash), encoded)
}

// Clear is unsupported for remote caches; entries expire server-side.
func (r *RemoteCache) Clear() error {
	return fmt.Errorf("remote caches do not support clear")
}

// httpStore is a blob store over plain GET/PUT.
type httpStore struct {
	endpoint string
	client   *http.Client
}

func newHTTPStore(endpoint string) *httpStore {
	return &httpStore{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: remoteTimeout},
	}
}

func (s *httpStore) url(key string) string { return s.endpoint + "/" + key }

func (s *httpStore) Put(ctx context.Context, key string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url(key), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building cache request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("cache put %s: unexpected status %s", key, resp.Status)
	}
	return nil
}

func (s *httpStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(key), nil)
	if err != nil {
		return nil, false, fmt.Errorf("building cache request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	case resp.StatusCode/100 != 2:
		io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("cache get %s: unexpected status %s", key, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return data, true, nil
}
