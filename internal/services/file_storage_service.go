package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/supplysync/server/internal/models"
)

// FileStorageService stores sync file attachments under <table>/<record>/
type FileStorageService struct {
	basePath         string
	maxFileSizeBytes int64
	hashService      *HashService
}

// NewFileStorageService creates a new FileStorageService
func NewFileStorageService(basePath string, maxFileSizeMB int64, hashService *HashService) (*FileStorageService, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	return &FileStorageService{
		basePath:         absPath,
		maxFileSizeBytes: maxFileSizeMB * 1024 * 1024,
		hashService:      hashService,
	}, nil
}

// Store writes the content of a referenced file and returns its SHA-256.
// When expectedHash is set, content that does not match is discarded.
func (s *FileStorageService) Store(ref *models.SyncFileReferenceRow, reader io.Reader, expectedHash string) (string, error) {
	if ref.TotalBytes > s.maxFileSizeBytes {
		return "", models.ErrFileTooLarge
	}
	expected, err := s.hashService.ParseChecksum(expectedHash)
	if err != nil {
		return "", err
	}

	fullPath, err := s.GetFullPath(ref.StoredPath())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", err
	}

	// Write to a temp file first so a partial transfer never looks complete
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	limited := io.LimitReader(reader, s.maxFileSizeBytes+1)
	hash, err := s.hashService.ComputeHash(io.TeeReader(limited, tmp))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}

	info, err := os.Stat(tmp.Name())
	if err != nil {
		return "", err
	}
	if info.Size() > s.maxFileSizeBytes {
		return "", models.ErrFileTooLarge
	}
	if expected != "" && expected != hash {
		return "", models.ErrChecksumMismatch
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", err
	}
	return hash, nil
}

// Open returns the stored file for reading
func (s *FileStorageService) Open(ref *models.SyncFileReferenceRow) (*os.File, error) {
	fullPath, err := s.GetFullPath(ref.StoredPath())
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if os.IsNotExist(err) {
		return nil, models.ErrFileNotFound
	}
	return file, err
}

// Checksum returns the SHA-256 of a stored file
func (s *FileStorageService) Checksum(ref *models.SyncFileReferenceRow) (string, error) {
	file, err := s.Open(ref)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return s.hashService.ComputeHash(file)
}

// Delete removes a stored file
func (s *FileStorageService) Delete(ref *models.SyncFileReferenceRow) bool {
	fullPath, err := s.GetFullPath(ref.StoredPath())
	if err != nil {
		return false
	}

	if err := os.Remove(fullPath); err != nil {
		return false
	}

	return true
}

// GetFullPath returns the absolute path for a stored path
func (s *FileStorageService) GetFullPath(storedPath string) (string, error) {
	if strings.TrimSpace(storedPath) == "" {
		return "", fmt.Errorf("stored path cannot be empty")
	}

	// Normalize path separators
	normalizedPath := filepath.FromSlash(storedPath)
	fullPath := filepath.Join(s.basePath, normalizedPath)

	// Security check
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(absPath, s.basePath+string(os.PathSeparator)) {
		return "", models.ErrPathTraversal
	}

	return absPath, nil
}

// Exists checks if the file of a reference has been stored
func (s *FileStorageService) Exists(ref *models.SyncFileReferenceRow) bool {
	fullPath, err := s.GetFullPath(ref.StoredPath())
	if err != nil {
		return false
	}

	_, err = os.Stat(fullPath)
	return err == nil
}
