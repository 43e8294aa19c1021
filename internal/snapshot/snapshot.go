// Package snapshot preserves uncommitted work across sparse-profile
// changes that would otherwise remove the files holding it. The archive
// format is a tar of the index, a patch of tracked changes versus HEAD,
// and every untracked file; it deliberately avoids git stash, which is
// slow against sparse indices.
package snapshot

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/treescope/treescope/internal/gitops"
)

// Archive member names.
const (
	indexMember = ".git/index"
	patchMember = ".git/focus/tracked-changes.patch"
)

// ErrDirtyTree reports that a snapshot cannot be applied over pending
// changes.
var ErrDirtyTree = errors.New("working tree must be clean")

// Create archives the working tree's pending state into destDir and
// resets the tree clean. A clean tree produces no archive ("" is
// returned).
func Create(ctx context.Context, repo *gitops.Repo, destDir string) (string, error) {
	wt := repo.WorkingTree()
	status, err := wt.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("determining working tree status: %w", err)
	}
	if status.IsEmpty() {
		return "", nil
	}

	patch, err := trackedChangesPatch(ctx, repo.Root())
	if err != nil {
		return "", err
	}

	head, err := repo.HeadCommit(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}
	archivePath := filepath.Join(destDir, head+".snapshot.tar")

	if err := writeArchive(archivePath, repo, status, patch); err != nil {
		os.Remove(archivePath)
		return "", err
	}

	// The state is safely archived; clean the tree.
	if _, err := run(ctx, repo.Root(), "git", "clean", "-f", "-d"); err != nil {
		return "", fmt.Errorf("cleaning untracked files: %w", err)
	}
	if _, err := run(ctx, repo.Root(), "git", "reset", "--hard"); err != nil {
		return "", fmt.Errorf("resetting working tree: %w", err)
	}
	return archivePath, nil
}

// Apply unpacks an archive over a clean working tree, preserving modes and
// modification times, then applies the tracked-changes patch. Fails loudly
// when the patch no longer applies.
func Apply(ctx context.Context, archivePath string, repo *gitops.Repo) error {
	wt := repo.WorkingTree()
	clean, err := wt.IsClean(ctx)
	if err != nil {
		return err
	}
	if !clean {
		return fmt.Errorf("applying snapshot %s: %w", archivePath, ErrDirtyTree)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening snapshot %s: %w", archivePath, err)
	}
	defer file.Close()

	var patch []byte
	reader := tar.NewReader(file)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading snapshot %s: %w", archivePath, err)
		}
		switch header.Name {
		case indexMember:
			if err := extractTo(filepath.Join(wt.GitDir(), "index"), header, reader); err != nil {
				return err
			}
		case patchMember:
			patch, err = io.ReadAll(reader)
			if err != nil {
				return fmt.Errorf("reading snapshot patch: %w", err)
			}
		default:
			if strings.Contains(header.Name, "..") {
				return fmt.Errorf("snapshot member %q escapes the working tree", header.Name)
			}
			if err := extractTo(filepath.Join(repo.Root(), header.Name), header, reader); err != nil {
				return err
			}
		}
	}

	if len(bytes.TrimSpace(patch)) > 0 {
		if out, err := runStdin(ctx, repo.Root(), patch, "git", "apply", "--whitespace=nowarn"); err != nil {
			return fmt.Errorf("applying tracked-changes patch: %w\n%s", err, out)
		}
	}
	return nil
}

func trackedChangesPatch(ctx context.Context, root string) ([]byte, error) {
	out, err := run(ctx, root, "git", "diff", "--binary", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("diffing tracked changes: %w", err)
	}
	return out, nil
}

func writeArchive(archivePath string, repo *gitops.Repo, status *gitops.Status, patch []byte) error {
	file, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating snapshot archive: %w", err)
	}
	defer file.Close()

	w := tar.NewWriter(file)

	indexPath := filepath.Join(repo.WorkingTree().GitDir(), "index")
	if err := addFile(w, indexMember, indexPath); err != nil {
		return err
	}
	if err := addBytes(w, patchMember, patch); err != nil {
		return err
	}
	for _, entry := range status.WithDisposition(gitops.Untracked) {
		if err := addFile(w, entry.Path, filepath.Join(repo.Root(), entry.Path)); err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing snapshot archive: %w", err)
	}
	return file.Sync()
}

func addFile(w *tar.Writer, name, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	header.Name = name
	if err := w.WriteHeader(header); err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	defer file.Close()
	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	return nil
}

func addBytes(w *tar.Writer, name string, data []byte) error {
	header := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
	if err := w.WriteHeader(header); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	return nil
}

func extractTo(path string, header *tar.Header, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("extracting %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode).Perm())
	if err != nil {
		return fmt.Errorf("extracting %s: %w", path, err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return fmt.Errorf("extracting %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("extracting %s: %w", path, err)
	}
	if err := os.Chmod(path, os.FileMode(header.Mode).Perm()); err != nil {
		return fmt.Errorf("restoring mode of %s: %w", path, err)
	}
	if !header.ModTime.IsZero() {
		if err := os.Chtimes(path, header.ModTime, header.ModTime); err != nil {
			return fmt.Errorf("restoring mtime of %s: %w", path, err)
		}
	}
	return nil
}

func run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w\nstderr: %s", name, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func runStdin(ctx context.Context, dir string, stdin []byte, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(stdin)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	err := cmd.Run()
	return combined.String(), err
}
