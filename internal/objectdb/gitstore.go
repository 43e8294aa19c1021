package objectdb

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/treescope/treescope/pkg/index"
)

// gitStoreRefPrefix namespaces the store's refs.
const gitStoreRefPrefix = "refs/focus/index/"

// GitStore keeps entries in the repository's own object database: each
// value is a blob, referenced from a ref named by the entry's cache key.
// Slower than Badger but has no dependencies beyond the repo itself.
type GitStore struct {
	repo *git.Repository
}

// NewGitStore wraps an open repository.
func NewGitStore(repo *git.Repository) *GitStore {
	return &GitStore{repo: repo}
}

func (s *GitStore) refName(hash index.ContentHash) plumbing.ReferenceName {
	key := index.EncodeCacheKey(index.ResolveFunctionID, hash)
	return plumbing.ReferenceName(gitStoreRefPrefix + hex.EncodeToString(key))
}

func (s *GitStore) Get(hash index.ContentHash) (index.DependencyValue, bool, error) {
	ref, err := s.repo.Reference(s.refName(hash), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("git store get %s: %w", hash, err)
	}

	blob, err := s.repo.BlobObject(ref.Hash())
	if err != nil {
		return nil, false, fmt.Errorf("git store get %s: %w", hash, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, false, fmt.Errorf("git store get %s: %w", hash, err)
	}
	defer reader.Close()
	encoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("git store get %s: %w", hash, err)
	}

	value, err := index.DecodeValue(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("git store get %s: %w", hash, err)
	}
	return value, true, nil
}

func (s *GitStore) Insert(hash index.ContentHash, value index.DependencyValue) error {
	if existing, ok, err := s.Get(hash); err == nil && ok && !index.ValuesEqual(existing, value) {
		log.Printf("git store: conflicting insert under %s (non-deterministic dependency hashing?)", hash)
	}

	encoded, err := index.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("git store insert %s: %w", hash, err)
	}

	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return fmt.Errorf("git store insert %s: %w", hash, err)
	}
	if _, err := w.Write(encoded); err != nil {
		w.Close()
		return fmt.Errorf("git store insert %s: %w", hash, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("git store insert %s: %w", hash, err)
	}
	blobID, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("git store insert %s: %w", hash, err)
	}

	ref := plumbing.NewHashReference(s.refName(hash), blobID)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("git store insert %s: %w", hash, err)
	}
	return nil
}

// Clear deletes every store ref; the blobs are left for git gc.
func (s *GitStore) Clear() error {
	refs, err := s.repo.References()
	if err != nil {
		return fmt.Errorf("clearing git store: %w", err)
	}
	var names []plumbing.ReferenceName
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(string(ref.Name()), gitStoreRefPrefix) {
			names = append(names, ref.Name())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing git store: %w", err)
	}
	for _, name := range names {
		if err := s.repo.Storer.RemoveReference(name); err != nil {
			return fmt.Errorf("clearing git store ref %s: %w", name, err)
		}
	}
	return nil
}
