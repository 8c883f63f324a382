package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MKhiriev/go-note-keeper/internal/logger"
)

// localFileStorage keeps blobs as files named by their hash in one directory.
type localFileStorage struct {
	dir    string
	logger *logger.Logger
}

// NewLocalFileStorage returns a [FileStorage] rooted at dir, creating it
// when missing.
func NewLocalFileStorage(dir string, logger *logger.Logger) (FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("error creating files dir: %w", err)
	}

	return &localFileStorage{
		dir:    dir,
		logger: logger,
	}, nil
}

// validHash rejects anything that is not a lowercase hex SHA-256, which
// also keeps callers from escaping the storage directory.
func validHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil && strings.ToLower(hash) == hash
}

func (s *localFileStorage) path(hash string) (string, error) {
	if !validHash(hash) {
		return "", fmt.Errorf("%w: invalid hash %q", ErrBlobNotFound, hash)
	}
	return filepath.Join(s.dir, hash), nil
}

func (s *localFileStorage) Write(ctx context.Context, r io.Reader) (string, int64, error) {
	log := logger.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		log.Err(err).Str("func", "localFileStorage.Write").Msg("failed to create temp file")
		return "", 0, fmt.Errorf("error creating temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.Err(err).Str("func", "localFileStorage.Write").Msg("failed to write blob")
		return "", 0, fmt.Errorf("error writing blob: %w", err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	if err = os.Rename(tmp.Name(), filepath.Join(s.dir, hash)); err != nil {
		log.Err(err).Str("func", "localFileStorage.Write").Str("hash", hash).Msg("failed to move blob in place")
		return "", 0, fmt.Errorf("error storing blob: %w", err)
	}

	return hash, size, nil
}

func (s *localFileStorage) Read(ctx context.Context, hash string) (io.ReadCloser, error) {
	p, err := s.path(hash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "localFileStorage.Read").Str("hash", hash).Msg("failed to open blob")
		return nil, fmt.Errorf("error opening blob: %w", err)
	}

	return f, nil
}

func (s *localFileStorage) Exists(_ context.Context, hash string) (bool, error) {
	p, err := s.path(hash)
	if err != nil {
		return false, nil
	}

	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *localFileStorage) Delete(ctx context.Context, hash string) error {
	p, err := s.path(hash)
	if err != nil {
		return err
	}

	if err = os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.FromContext(ctx).Err(err).Str("func", "localFileStorage.Delete").Str("hash", hash).Msg("failed to delete blob")
		return fmt.Errorf("error deleting blob: %w", err)
	}

	return nil
}

func (s *localFileStorage) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("error listing files dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err = os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.FromContext(ctx).Err(err).Str("func", "localFileStorage.Clear").Str("name", e.Name()).Msg("failed to delete blob")
			return fmt.Errorf("error clearing files dir: %w", err)
		}
	}

	return nil
}
