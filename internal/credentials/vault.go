package credentials

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/ent0n29/pagelens/internal/kvstore"
	"github.com/ent0n29/pagelens/internal/settings"
)

// Backend holds the encoded credential token.
type Backend interface {
	LoadToken(ctx context.Context) (string, error)
	StoreToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
	Name() string
}

var errNoToken = errors.New("no credential token")

// StoreBackend keeps the token in the persisted key/value store.
type StoreBackend struct {
	kv kvstore.Store
}

func NewStoreBackend(kv kvstore.Store) *StoreBackend {
	return &StoreBackend{kv: kv}
}

func (b *StoreBackend) LoadToken(ctx context.Context) (string, error) {
	raw, err := b.kv.Get(ctx, kvstore.KeyCredentials)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", errNoToken
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *StoreBackend) StoreToken(ctx context.Context, token string) error {
	return b.kv.Set(ctx, kvstore.KeyCredentials, []byte(token))
}

func (b *StoreBackend) DeleteToken(ctx context.Context) error {
	return b.kv.Delete(ctx, kvstore.KeyCredentials)
}

func (b *StoreBackend) Name() string { return "store" }

// KeyringBackend keeps the token in the OS keychain.
type KeyringBackend struct {
	service string
	user    string
}

func NewKeyringBackend(service string) *KeyringBackend {
	if strings.TrimSpace(service) == "" {
		service = "pagelens"
	}
	return &KeyringBackend{service: service, user: "userCredentials"}
}

func (b *KeyringBackend) LoadToken(_ context.Context) (string, error) {
	token, err := keyring.Get(b.service, b.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", errNoToken
	}
	return token, err
}

func (b *KeyringBackend) StoreToken(_ context.Context, token string) error {
	return keyring.Set(b.service, b.user, token)
}

func (b *KeyringBackend) DeleteToken(_ context.Context) error {
	err := keyring.Delete(b.service, b.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func (b *KeyringBackend) Name() string { return "keyring" }

// Vault resolves the current credentials. Read failures of any kind are
// reported as "no credentials", so a broken store degrades to unauthenticated.
type Vault struct {
	backend      Backend
	codec        Codec
	kv           kvstore.Store
	defaultModel string
	now          func() time.Time
}

func NewVault(backend Backend, codec Codec, kv kvstore.Store, defaultModel string) *Vault {
	if codec == nil {
		codec = Base64Codec{}
	}
	return &Vault{
		backend:      backend,
		codec:        codec,
		kv:           kv,
		defaultModel: defaultModel,
		now:          time.Now,
	}
}

// Load returns the stored credentials, or false when absent or unreadable.
// A record without a model takes the persisted settings' aiModel, then the
// vault's default model.
func (v *Vault) Load(ctx context.Context) (Credentials, bool) {
	token, err := v.backend.LoadToken(ctx)
	if err != nil {
		if !errors.Is(err, errNoToken) {
			log.Printf("credentials load failed (%s): %v", v.backend.Name(), err)
		}
		return Credentials{}, false
	}
	creds, ok := v.codec.Decode(token)
	if !ok {
		log.Printf("stored credentials could not be decoded; treating as absent")
		return Credentials{}, false
	}
	return creds.Normalize(v.settingsModel(ctx)), true
}

func (v *Vault) settingsModel(ctx context.Context) string {
	base := settings.Defaults(v.defaultModel)
	if v.kv == nil {
		return base.AIModel
	}
	s, err := settings.Load(ctx, v.kv, base)
	if err != nil {
		log.Printf("settings load failed, using default model: %v", err)
	}
	return s.AIModel
}

// Save encodes and stores the credentials and records the authentication time.
// An empty model is stored as empty so Load keeps following the settings.
func (v *Vault) Save(ctx context.Context, creds Credentials) error {
	creds = creds.Normalize("")
	if !creds.Valid() {
		return errors.New("credentials: api key is required")
	}
	token, err := v.codec.Encode(creds)
	if err != nil {
		return err
	}
	if err := v.backend.StoreToken(ctx, token); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	stamp := strconv.FormatInt(v.now().UTC().UnixMilli(), 10)
	if err := v.kv.Set(ctx, kvstore.KeyLastAuth, []byte(stamp)); err != nil {
		return fmt.Errorf("store last auth: %w", err)
	}
	return nil
}

// Clear removes the stored credentials and the last authentication time.
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.backend.DeleteToken(ctx); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	if err := v.kv.Delete(ctx, kvstore.KeyLastAuth); err != nil {
		return fmt.Errorf("delete last auth: %w", err)
	}
	return nil
}

// LastAuth returns when credentials were last stored, if ever.
func (v *Vault) LastAuth(ctx context.Context) (time.Time, bool) {
	raw, err := v.kv.Get(ctx, kvstore.KeyLastAuth)
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// BackendName reports where tokens are kept.
func (v *Vault) BackendName() string {
	return v.backend.Name()
}
