// Package credentials stores the user's LLM API key.
//
// The stored form is a reversible encoding, not encryption: anyone with read
// access to the persisted store can recover the key. Swap the Codec for an
// authenticated-encryption implementation to get confidentiality; callers only
// depend on the Codec interface.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Credentials authenticate requests to the remote LLM API.
type Credentials struct {
	APIKey  string `json:"apiKey"`
	AIModel string `json:"aiModel,omitempty"`
}

// Valid reports whether the credentials carry a usable key.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Normalize trims the key and fills in the default model when none is set.
func (c Credentials) Normalize(defaultModel string) Credentials {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.AIModel = strings.TrimSpace(c.AIModel)
	if c.AIModel == "" {
		c.AIModel = defaultModel
	}
	return c
}

// String never includes the key.
func (c Credentials) String() string {
	return fmt.Sprintf("credentials(model=%q, key=%s)", c.AIModel, maskKey(c.APIKey))
}

// Codec turns credentials into an opaque token for storage and back.
// Decode never fails loudly: malformed input is reported as absent.
type Codec interface {
	Encode(Credentials) (string, error)
	Decode(token string) (Credentials, bool)
}

// Base64Codec encodes credentials as base64(JSON). It provides no confidentiality.
type Base64Codec struct{}

func (Base64Codec) Encode(c Credentials) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (Base64Codec) Decode(token string) (Credentials, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Credentials{}, false
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Credentials{}, false
	}
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credentials{}, false
	}
	if !c.Valid() {
		return Credentials{}, false
	}
	return c, true
}

func maskKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "<none>"
	}
	return "<redacted>"
}
