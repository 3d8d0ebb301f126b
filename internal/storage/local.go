package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage stores objects as files under a base directory.
// Metadata lives in a "<id>.meta" sidecar of key=value lines.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage provider
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Initialize sets up the base directory ("basePath", default ./results)
func (l *LocalStorage) Initialize(config map[string]string) error {
	l.basePath = config["basePath"]
	if l.basePath == "" {
		l.basePath = "./results"
	}

	if err := os.MkdirAll(l.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

// path resolves id inside the base directory, rejecting traversal
func (l *LocalStorage) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid object id %q", id)
	}
	return filepath.Join(l.basePath, id), nil
}

// Store writes content to a new file
func (l *LocalStorage) Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	id := objectID("", name)
	filePath, err := l.path(id)
	if err != nil {
		return "", err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	if len(metadata) > 0 {
		if err := writeMeta(filePath+".meta", metadata); err != nil {
			os.Remove(filePath)
			return "", err
		}
	}

	return id, nil
}

// Retrieve opens a stored file. On unix an open file survives Delete, so a
// download in progress is never cut short.
func (l *LocalStorage) Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error) {
	filePath, err := l.path(id)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, readMeta(filePath + ".meta"), nil
}

// Delete removes a file and its metadata sidecar
func (l *LocalStorage) Delete(ctx context.Context, id string) error {
	filePath, err := l.path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	os.Remove(filePath + ".meta")
	return nil
}

// List returns stored files whose id starts with prefix
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".meta") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		metadata := readMeta(filepath.Join(l.basePath, entry.Name()+".meta"))
		name := entry.Name()
		if original := metadata[MetaFileName]; original != "" {
			name = original
		}

		files = append(files, FileInfo{
			ID:          entry.Name(),
			Name:        name,
			Size:        info.Size(),
			ContentType: metadata[MetaContentType],
			ModifiedAt:  info.ModTime().Unix(),
			Metadata:    metadata,
		})
	}

	return files, nil
}

// GetBasePath returns the base path of this storage provider
func (l *LocalStorage) GetBasePath() string {
	return l.basePath
}

// GetSignedURL returns a file:// URL for local files
func (l *LocalStorage) GetSignedURL(ctx context.Context, id string, expiryMinutes int, operation string) (string, error) {
	filePath, err := l.path(id)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return "file://" + filepath.ToSlash(absPath), nil
}

func writeMeta(path string, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for k, v := range metadata {
		// values are single-line by construction; strip newlines anyway
		fmt.Fprintf(w, "%s=%s\n", k, strings.ReplaceAll(v, "\n", " "))
	}
	return w.Flush()
}

func readMeta(path string) map[string]string {
	metadata := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		return metadata
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			metadata[k] = v
		}
	}
	return metadata
}
