// Package delivery hands serialized export files to their destination.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wfm/internal/domain/payroll"
)

var (
	ErrFileNotFound    = errors.New("export file not found")
	ErrInvalidLocation = errors.New("invalid export file location")
)

// LocalStorage writes each run's file to <dir>/<runID>/<filename>. Stored
// locations are relative to dir.
type LocalStorage struct {
	dir    string
	sealer *Sealer
}

func NewLocalStorage(dir string, sealer *Sealer) *LocalStorage {
	if sealer == nil {
		sealer = &Sealer{}
	}
	return &LocalStorage{dir: dir, sealer: sealer}
}

// Deliver writes through a temporary file and rename, so a location is only
// returned for a complete file.
func (s *LocalStorage) Deliver(ctx context.Context, runID string, file payroll.File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if runID == "" || file.Filename == "" || filepath.Base(file.Filename) != file.Filename {
		return "", fmt.Errorf("%w: run %q file %q", ErrInvalidLocation, runID, file.Filename)
	}
	content, err := s.sealer.Seal(file.Content)
	if err != nil {
		return "", fmt.Errorf("seal export file: %w", err)
	}

	location := filepath.Join(runID, file.Filename)
	target := filepath.Join(s.dir, location)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".part-*")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("store export file: %w", err)
	}
	return filepath.ToSlash(location), nil
}

// Open returns the decrypted content stored at a location from Deliver.
func (s *LocalStorage) Open(location string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(location))
	if location == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}
	sealed, err := os.ReadFile(filepath.Join(s.dir, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	plain, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return plain, nil
}
