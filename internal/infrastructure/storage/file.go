package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileStore keeps recording blobs on the local filesystem and serves them
// under a public base URL.
type FileStore struct {
	baseDir string
	baseURL string
	logger  *zap.SugaredLogger
}

func NewFileStore(baseDir, baseURL string, logger *zap.SugaredLogger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}, nil
}

func (s *FileStore) Upload(ctx context.Context, path string, blob []byte) (string, error) {
	filePath := filepath.Join(s.baseDir, filepath.FromSlash(path))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create recording subdirectory: %w", err)
	}
	if err := os.WriteFile(filePath, blob, 0644); err != nil {
		return "", fmt.Errorf("failed to write recording file: %w", err)
	}

	s.logger.Debugw("recording blob stored",
		"path", filePath,
		"bytes", len(blob),
	)
	return s.baseURL + "/" + path, nil
}
