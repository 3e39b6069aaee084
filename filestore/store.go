// Package filestore implements storage.BlobStore on top of an afero
// filesystem. Locators are slash separated paths relative to the store
// root, namespaces are directories and blobs are .json files inside them.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/asaidimu/manyjson/core/storage"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	tempPattern = ".manyjson-*.tmp"
)

// Store is a storage.BlobStore backed by an afero.Fs.
type Store struct {
	fs     afero.Fs
	logger *zap.Logger
}

var _ storage.BlobStore = (*Store)(nil)

// New returns a Store rooted at dir on the host filesystem. The directory is
// created if it does not exist.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir), logger), nil
}

// NewWithFs returns a Store over an arbitrary afero filesystem, typically
// afero.NewMemMapFs in tests.
func NewWithFs(fsys afero.Fs, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{fs: fsys, logger: logger}
}

// Fs exposes the underlying filesystem.
func (s *Store) Fs() afero.Fs { return s.fs }

// Locator joins namespace and name into a slash path.
func (s *Store) Locator(namespace, name string) string {
	return path.Join(namespace, name)
}

func (s *Store) Read(ctx context.Context, locator string) ([]byte, error) {
	p, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, s.wrap("read", locator, err)
	}
	return data, nil
}

// Write stores content through a temporary file in the target directory
// followed by a rename, so readers never observe a partial blob.
func (s *Store) Write(ctx context.Context, locator string, content []byte) error {
	p, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
		return s.wrap("write", locator, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, tempPattern)
	if err != nil {
		return s.wrap("write", locator, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		s.discard(tmpName)
		return s.wrap("write", locator, err)
	}
	if err := tmp.Close(); err != nil {
		s.discard(tmpName)
		return s.wrap("write", locator, err)
	}
	if err := s.fs.Rename(tmpName, p); err != nil {
		s.discard(tmpName)
		return s.wrap("write", locator, err)
	}

	s.logger.Debug("Wrote blob", zap.String("locator", locator), zap.Int("bytes", len(content)))
	return nil
}

func (s *Store) Delete(ctx context.Context, locator string) error {
	p, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := afero.Exists(s.fs, p)
	if err != nil {
		return s.wrap("delete", locator, err)
	}
	if !ok {
		return fmt.Errorf("delete %s: %w", locator, storage.ErrNotFound)
	}
	if err := s.fs.Remove(p); err != nil {
		return s.wrap("delete", locator, err)
	}
	return nil
}

// List returns the .json blobs directly inside namespace with their
// content. Blobs that cannot be read are logged and left out.
func (s *Store) List(ctx context.Context, namespace string) ([]storage.Entry, error) {
	if err := validNamespace(namespace); err != nil {
		return nil, err
	}

	pattern := "*.json"
	if namespace != "" && namespace != "." {
		pattern = namespace + "/*.json"
	}
	matches, err := doublestar.Glob(afero.NewIOFS(s.fs), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", namespace, err)
	}
	sort.Strings(matches)

	entries := make([]storage.Entry, 0, len(matches))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := afero.ReadFile(s.fs, filepath.FromSlash(m))
		if err != nil {
			s.logger.Warn("Skipping unreadable blob", zap.String("locator", m), zap.Error(err))
			continue
		}
		entries = append(entries, storage.Entry{
			Name:    path.Base(m),
			Locator: m,
			Content: data,
		})
	}
	return entries, nil
}

func (s *Store) Rename(ctx context.Context, oldLocator, newLocator string) error {
	from, err := s.resolve(oldLocator)
	if err != nil {
		return err
	}
	to, err := s.resolve(newLocator)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := afero.Exists(s.fs, from)
	if err != nil {
		return s.wrap("rename", oldLocator, err)
	}
	if !exists {
		return fmt.Errorf("rename %s: %w", oldLocator, storage.ErrNotFound)
	}
	taken, err := afero.Exists(s.fs, to)
	if err != nil {
		return s.wrap("rename", newLocator, err)
	}
	if taken {
		return fmt.Errorf("rename %s to %s: %w", oldLocator, newLocator, storage.ErrExists)
	}

	if err := s.fs.MkdirAll(filepath.Dir(to), dirPerm); err != nil {
		return s.wrap("rename", newLocator, err)
	}
	if err := s.fs.Rename(from, to); err != nil {
		return s.wrap("rename", oldLocator, err)
	}
	return nil
}

func (s *Store) EnsureNamespace(ctx context.Context, namespace string) (string, error) {
	if err := validNamespace(namespace); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(filepath.FromSlash(namespace), dirPerm); err != nil {
		return "", s.wrap("ensure namespace", namespace, err)
	}
	return namespace, nil
}

func (s *Store) resolve(locator string) (string, error) {
	if locator == "" || !fs.ValidPath(locator) || locator == "." {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return filepath.FromSlash(locator), nil
}

func validNamespace(namespace string) error {
	if namespace == "" || namespace == "." {
		return nil
	}
	if !fs.ValidPath(namespace) || strings.ContainsAny(namespace, `*?[]{}\`) {
		return fmt.Errorf("invalid namespace %q", namespace)
	}
	return nil
}

func (s *Store) discard(name string) {
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove temporary file", zap.String("path", name), zap.Error(err))
	}
}

func (s *Store) wrap(op, locator string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", op, locator, storage.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, locator, err)
}
