package index

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// HashSize is the size of a content hash in bytes. SHA-1 is retained so
// hashes share the underlying VCS's object-id type.
const HashSize = 20

// ContentHash is the hash of a dependency key's content-addressable state
// for a particular commit tree.
type ContentHash [HashSize]byte

func (h ContentHash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether the hash is all zero bytes.
func (h ContentHash) IsZero() bool { return h == ContentHash{} }

// ParseHash decodes a 40-character hex string.
func ParseHash(s string) (ContentHash, error) {
	var h ContentHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing content hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("parsing content hash %q: got %d bytes, want %d", s, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// TreeReader supplies the object id recorded for a path in a commit tree.
// The production implementation wraps a go-git tree; tests use a map.
type TreeReader interface {
	// EntryOID returns the object id at path, or ok=false when the tree
	// has no entry there. Errors are reserved for real access failures.
	EntryOID(path string) (oid [HashSize]byte, ok bool, err error)
}

// GitTree adapts a go-git tree to the TreeReader interface.
type GitTree struct {
	Tree *object.Tree
}

func (g GitTree) EntryOID(path string) ([HashSize]byte, bool, error) {
	entry, err := g.Tree.FindEntry(path)
	switch {
	case err == nil:
		return entry.Hash, true, nil
	case errors.Is(err, object.ErrEntryNotFound), errors.Is(err, object.ErrDirectoryNotFound), errors.Is(err, plumbing.ErrObjectNotFound):
		return [HashSize]byte{}, false, nil
	default:
		return [HashSize]byte{}, false, fmt.Errorf("reading tree entry %q: %w", path, err)
	}
}

// HashContext hashes dependency keys against one commit tree. It memoizes
// per-key results, so contexts are cheap to reuse within a sync but must
// not outlive the tree they were built for. Not safe for concurrent use.
type HashContext struct {
	tree TreeReader
	db   ObjectDatabase
	memo map[string]ContentHash
}

// NewHashContext builds a context over the given tree. db may be nil; it
// is consulted only by BuildGraphHash to mix in previously resolved
// dependency edges.
func NewHashContext(tree TreeReader, db ObjectDatabase) *HashContext {
	return &HashContext{
		tree: tree,
		db:   db,
		memo: make(map[string]ContentHash),
	}
}

// Hash computes the structural content hash of a key: its variant-tagged
// frame plus the tree object-id at every path the key itself references.
// This is the object database's keyspace.
func (c *HashContext) Hash(key DependencyKey) (ContentHash, error) {
	if h, ok := c.memo[key.String()]; ok {
		return h, nil
	}
	hasher := sha1.New()
	visited := map[string]bool{}
	if err := c.write(hasher, key, visited, false); err != nil {
		return ContentHash{}, err
	}
	var h ContentHash
	copy(h[:], hasher.Sum(nil))
	c.memo[key.String()] = h
	return h, nil
}

// BuildGraphHash computes the transitive content hash of a key set: each
// key's structural frame plus, recursively, the frames of every dependency
// edge recorded for it in the object database. Keys are folded in sorted
// order so the result is deterministic for a fixed tree and database.
func (c *HashContext) BuildGraphHash(keys []DependencyKey) (ContentHash, error) {
	hasher := sha1.New()
	visited := map[string]bool{}
	for _, ks := range sortedKeyStrings(keys) {
		key := keyByString(keys, ks)
		if err := c.write(hasher, key, visited, true); err != nil {
			return ContentHash{}, err
		}
	}
	var h ContentHash
	copy(h[:], hasher.Sum(nil))
	return h, nil
}

// write feeds one key's frame into hasher. Cycles are broken by the
// per-call visited set: a revisited key contributes its canonical string
// only, never a recursive descent.
func (c *HashContext) write(hasher hash.Hash, key DependencyKey, visited map[string]bool, transitive bool) error {
	if visited[key.String()] {
		io.WriteString(hasher, key.String())
		return nil
	}
	visited[key.String()] = true

	io.WriteString(hasher, "DependencyKey::")
	switch k := key.(type) {
	case BazelPackageKey:
		io.WriteString(hasher, "BazelPackage(")
		if err := c.writePath(hasher, k.Path, buildFilePaths(k.Path)...); err != nil {
			return err
		}
	case PathKey:
		io.WriteString(hasher, "Path(")
		if err := c.writePath(hasher, k.Path, k.Path); err != nil {
			return err
		}
	case BazelBuildFileKey:
		io.WriteString(hasher, "BazelBuildFile(")
		if err := c.writePath(hasher, k.Path, k.Path); err != nil {
			return err
		}
	case DummyKey:
		io.WriteString(hasher, "Dummy(")
		if err := c.write(hasher, k.Inner, visited, transitive); err != nil {
			return err
		}
	default:
		return fmt.Errorf("hashing dependency key %s: unknown variant %T", key, key)
	}

	if transitive {
		if err := c.writeDeps(hasher, key, visited); err != nil {
			return err
		}
	}

	io.WriteString(hasher, ")")
	return nil
}

// writePath writes the canonical path followed by the object id of the
// first candidate present in the tree, or the zero id when none is.
func (c *HashContext) writePath(hasher hash.Hash, canonical string, candidates ...string) error {
	io.WriteString(hasher, canonical)
	for _, candidate := range candidates {
		oid, ok, err := c.tree.EntryOID(candidate)
		if err != nil {
			return err
		}
		if ok {
			hasher.Write(oid[:])
			return nil
		}
	}
	hasher.Write(make([]byte, HashSize))
	return nil
}

// writeDeps mixes in the dependency edges previously recorded for key, if
// the object database has them.
func (c *HashContext) writeDeps(hasher hash.Hash, key DependencyKey, visited map[string]bool) error {
	if c.db == nil {
		return nil
	}
	structural, err := c.Hash(key)
	if err != nil {
		return err
	}
	value, ok, err := c.db.Get(structural)
	if err != nil || !ok {
		return err
	}
	pkg, ok := value.(PackageValue)
	if !ok {
		return nil
	}
	for _, ds := range sortedKeyStrings(pkg.Deps) {
		dep := keyByString(pkg.Deps, ds)
		if err := c.write(hasher, dep, visited, true); err != nil {
			return err
		}
	}
	return nil
}

// buildFilePaths lists the build-definition file candidates for a package.
func buildFilePaths(pkgPath string) []string {
	return []string{pkgPath + "/BUILD", pkgPath + "/BUILD.bazel"}
}

func keyByString(keys []DependencyKey, s string) DependencyKey {
	for _, k := range keys {
		if k.String() == s {
			return k
		}
	}
	return nil
}
