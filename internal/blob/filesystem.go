package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ots-go/internal/ots"
)

// FileSystemBlobStore stores each encrypted blob as one file named by its
// token under <root>/blobs/. Writes go through a temp file and rename, so a
// blob is never observable half-written.
type FileSystemBlobStore struct {
	root    string
	blobDir string
}

// NewFileSystemBlobStore creates a filesystem blob store rooted at root.
func NewFileSystemBlobStore(root string) (*FileSystemBlobStore, error) {
	blobDir := filepath.Join(root, "blobs")
	if err := os.MkdirAll(blobDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	return &FileSystemBlobStore{
		root:    root,
		blobDir: blobDir,
	}, nil
}

// path maps a token to its blob file. Tokens are hex strings produced by the
// service; anything that could escape the blob directory is rejected.
func (s *FileSystemBlobStore) path(token string) (string, error) {
	if token == "" || strings.ContainsAny(token, "/\\") || strings.Contains(token, "..") {
		return "", fmt.Errorf("invalid blob token: %q", token)
	}
	return filepath.Join(s.blobDir, token), nil
}

func (s *FileSystemBlobStore) Put(ctx context.Context, token string, r io.Reader) (int64, error) {
	destPath, err := s.path(token)
	if err != nil {
		return 0, err
	}

	tmpFile, err := os.CreateTemp(s.blobDir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return written, nil
}

func (s *FileSystemBlobStore) Open(ctx context.Context, token string) (io.ReadCloser, error) {
	srcPath, err := s.path(token)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", token)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

func (s *FileSystemBlobStore) Delete(ctx context.Context, token string) error {
	destPath, err := s.path(token)
	if err != nil {
		return err
	}

	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *FileSystemBlobStore) Exists(ctx context.Context, token string) (bool, error) {
	destPath, err := s.path(token)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(destPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return true, nil
}

func (s *FileSystemBlobStore) List(ctx context.Context) ([]ots.BlobInfo, error) {
	entries, err := os.ReadDir(s.blobDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob directory: %w", err)
	}

	var infos []ots.BlobInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				// Deleted between readdir and stat.
				continue
			}
			return nil, fmt.Errorf("failed to stat blob %s: %w", entry.Name(), err)
		}
		infos = append(infos, ots.BlobInfo{
			Token:   entry.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	return infos, nil
}

// ValidateSetup verifies that the blob directory is accessible.
func (s *FileSystemBlobStore) ValidateSetup() error {
	info, err := os.Stat(s.blobDir)
	if err != nil {
		return fmt.Errorf("blob directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob path is not a directory: %s", s.blobDir)
	}
	return nil
}

// Compile-time check that FileSystemBlobStore implements ots.BlobStore
var _ ots.BlobStore = (*FileSystemBlobStore)(nil)
