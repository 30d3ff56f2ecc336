// Package uploads stores the uploaded documents on local disk, one directory
// per scan.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/serrors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DocumentName is the name of the stored file inside a scan directory.
const DocumentName = "document.pdf"

// Store saves uploads under Dir/<scanID>/document.pdf.
type Store struct {
	Dir string
	// MaxSize limits the size of a single upload. Zero means unlimited.
	MaxSize int64
}

// New creates the upload directory when needed.
func New(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("could not create upload dir: %w", err)
	}

	return &Store{Dir: dir, MaxSize: maxSize}, nil
}

// Path returns the location of the document of a scan.
func (s *Store) Path(id domain.ScanID) string {
	return filepath.Join(s.Dir, id.String(), DocumentName)
}

// Save copies r to the document path of the scan. name is the client side file
// name and must have a .pdf extension.
func (s *Store) Save(ctx context.Context, id domain.ScanID, name string, r io.Reader) (domain.FileInfo, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return domain.FileInfo{}, serrors.With(serrors.ErrUnsupportedMedia, "Only PDF files are accepted")
	}

	path := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return domain.FileInfo{}, fmt.Errorf("could not create scan dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return domain.FileInfo{}, fmt.Errorf("could not create upload file: %w", err)
	}

	src := r
	if s.MaxSize > 0 {
		src = io.LimitReader(r, s.MaxSize+1)
	}
	size, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.MaxSize > 0 && size > s.MaxSize {
		err = serrors.With(serrors.ErrTooLarge, "file exceeds %d bytes", s.MaxSize)
	}
	if err != nil {
		s.Remove(ctx, id)
		if serrors.KindOf(err) != nil {
			return domain.FileInfo{}, err
		}

		return domain.FileInfo{}, fmt.Errorf("could not write upload: %w", err)
	}

	logger.Debug(ctx, "upload stored", zap.String("scanID", id.String()), zap.Int64("size", size))

	return domain.FileInfo{Name: name, Path: path, Size: size}, nil
}

// Remove deletes the directory of a scan. Missing directories are ignored.
func (s *Store) Remove(ctx context.Context, id domain.ScanID) {
	if err := os.RemoveAll(filepath.Join(s.Dir, id.String())); err != nil {
		logger.Warn(ctx, "could not remove upload", zap.String("scanID", id.String()), zap.Error(err))
	}
}

// RemoveOlderThan deletes the scan directories last modified before the given
// time and returns how many were removed. Entries that are not scan
// directories are left alone.
func (s *Store) RemoveOlderThan(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("could not list upload dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := domain.ParseScanID(e.Name())
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}

		s.Remove(ctx, id)
		removed++
	}

	return removed, nil
}
