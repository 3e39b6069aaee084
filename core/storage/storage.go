// Package storage defines the blob store the engine persists schemas, data
// files and the association record through. Implementations live outside
// the core; see package filestore for the filesystem one.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a locator does not exist.
	ErrNotFound = errors.New("blob not found")

	// ErrExists is returned by Rename when the target locator is taken.
	ErrExists = errors.New("blob already exists")
)

// Entry is one blob found by List.
type Entry struct {
	Name    string
	Locator string
	Content []byte
}

// BlobStore reads and writes named JSON blobs grouped into namespaces.
// Locators are slash separated paths relative to the store root: the
// engine splits them with path.Dir and path.Base but otherwise obtains
// them only from Locator, List and EnsureNamespace.
type BlobStore interface {
	// Read returns the content at locator, or ErrNotFound.
	Read(ctx context.Context, locator string) ([]byte, error)

	// Write stores content at locator. A failed write never leaves a
	// partially written blob visible at locator.
	Write(ctx context.Context, locator string, content []byte) error

	// Delete removes the blob at locator, or returns ErrNotFound.
	Delete(ctx context.Context, locator string) error

	// List returns every .json blob directly inside namespace, sorted by
	// name. A missing namespace lists as empty.
	List(ctx context.Context, namespace string) ([]Entry, error)

	// Rename moves a blob. It fails with ErrExists when newLocator is taken.
	Rename(ctx context.Context, oldLocator, newLocator string) error

	// EnsureNamespace creates namespace if needed and returns its locator.
	// It is idempotent.
	EnsureNamespace(ctx context.Context, namespace string) (string, error)

	// Locator returns the locator of name inside namespace.
	Locator(namespace, name string) string
}
