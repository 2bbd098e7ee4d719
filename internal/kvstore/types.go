package kvstore

import (
	"context"
	"errors"
)

// SchemaVersion is the layout version of the persisted keys written by this binary.
const SchemaVersion = 1

// Well-known keys shared by every component that touches persisted state.
const (
	KeySchemaVersion = "schemaVersion"
	KeyInstalledAt   = "installedAt"
	KeySettings      = "userSettings"
	KeyCredentials   = "userCredentials"
	KeyLastAuth      = "lastAuth"
	SessionKeyPrefix = "sessions/"
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrSchemaTooNew   = errors.New("persisted schema is newer than this binary")
	ErrUnsupportedURL = errors.New("unsupported store url")
)

// Store is a flat key/value map. Writes replace the whole value; callers that
// read-modify-write a key are responsible for serializing access to it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Mode() string
	Close() error
}
