package credentials

import (
	"fmt"
	"strings"

	"github.com/ent0n29/pagelens/internal/kvstore"
)

// NewBackend resolves a backend by name: "store" (default) or "keyring".
func NewBackend(name string, kv kvstore.Store) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "store":
		return NewStoreBackend(kv), nil
	case "keyring":
		return NewKeyringBackend("pagelens"), nil
	default:
		return nil, fmt.Errorf("unsupported credential backend %q", name)
	}
}
