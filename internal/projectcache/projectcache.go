// Package projectcache implements the client side of the project-cache
// protocol: precomputed pattern sets and build-graph hashes keyed by
// commit and selection, served over HTTP.
package projectcache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/treescope/treescope/pkg/patterns"
)

// Version of the key scheme.
const Version = 1

// SyncFromProjectCacheRequiredErrorMessage is the distinguished message
// surfaced when a required project is not present in the cache, so callers
// can recognize it and fall back to local resolution.
const SyncFromProjectCacheRequiredErrorMessage = "sync from project cache required, but it does not contain all selected projects"

// ErrProjectCacheRequired is the error carrying the distinguished message.
var ErrProjectCacheRequired = errors.New(SyncFromProjectCacheRequiredErrorMessage)

// requestTimeout bounds every cache request.
const requestTimeout = 30 * time.Second

// Client talks to one project-cache endpoint on behalf of one repository.
type Client struct {
	endpoint string
	host     string
	repo     string
	http     *http.Client
}

// NewClient builds a client. host and repo namespace this repository's
// entries within the shared endpoint.
func NewClient(endpoint, host, repo string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid project cache endpoint %q", endpoint)
	}
	return &Client{
		endpoint: endpoint,
		host:     host,
		repo:     repo,
		http:     &http.Client{Timeout: requestTimeout},
	}, nil
}

// Key constructors, one per key kind.

func CommitKey(commit string) string {
	return "commit-to-build-graph-hash:commit=" + commit
}

func MandatoryPatternSetKey(buildGraphHash string) string {
	return "mandatory-project-pattern-set:build-graph-hash=" + buildGraphHash
}

func OptionalPatternSetKey(buildGraphHash, project string) string {
	return fmt.Sprintf("optional-project-pattern-set:build-graph-hash=%s:project=%s", buildGraphHash, project)
}

func ImportReceiptKey(buildGraphHash string) string {
	return "import-receipt:build-graph-hash=" + buildGraphHash
}

func (c *Client) keyURL(key string) string {
	return fmt.Sprintf("%s/%s/%s/v%d/%s",
		c.endpoint, url.PathEscape(c.host), url.PathEscape(c.repo), Version, url.PathEscape(key))
}

// hashDocument is the JSON body for hash-valued entries.
type hashDocument struct {
	Hash string `json:"hash"`
}

// patternSetDocument is the JSON body for pattern-set entries.
type patternSetDocument struct {
	Patterns []string `json:"patterns"`
}

// GetBuildGraphHash maps a commit to its cached build-graph hash.
func (c *Client) GetBuildGraphHash(ctx context.Context, commit string) (string, bool, error) {
	var doc hashDocument
	ok, err := c.getJSON(ctx, CommitKey(commit), &doc)
	if err != nil || !ok {
		return "", false, err
	}
	return doc.Hash, true, nil
}

// PutBuildGraphHash records a commit's build-graph hash.
func (c *Client) PutBuildGraphHash(ctx context.Context, commit, hash string) error {
	return c.putJSON(ctx, CommitKey(commit), hashDocument{Hash: hash})
}

// GetPatternSet fetches the pattern set stored under key.
func (c *Client) GetPatternSet(ctx context.Context, key string) (*patterns.Set, bool, error) {
	var doc patternSetDocument
	ok, err := c.getJSON(ctx, key, &doc)
	if err != nil || !ok {
		return nil, false, err
	}
	return patterns.FromStrings(doc.Patterns), true, nil
}

// PutPatternSet stores a pattern set under key.
func (c *Client) PutPatternSet(ctx context.Context, key string, set *patterns.Set) error {
	return c.putJSON(ctx, key, patternSetDocument{Patterns: set.Sorted()})
}

// HasImportReceipt reports whether the cache has been fully populated for
// the given build-graph hash.
func (c *Client) HasImportReceipt(ctx context.Context, buildGraphHash string) (bool, error) {
	var doc json.RawMessage
	return c.getJSON(ctx, ImportReceiptKey(buildGraphHash), &doc)
}

func (c *Client) getJSON(ctx context.Context, key string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.keyURL(key), nil)
	if err != nil {
		return false, fmt.Errorf("building project cache request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("project cache get %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return false, nil
	case resp.StatusCode/100 != 2:
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("project cache get %s: unexpected status %s", key, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("project cache get %s: decoding body: %w", key, err)
	}
	return true, nil
}

func (c *Client) putJSON(ctx context.Context, key string, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("project cache put %s: encoding body: %w", key, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.keyURL(key), bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building project cache request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("project cache put %s: %w", key, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("project cache put %s: unexpected status %s", key, resp.Status)
	}
	return nil
}
