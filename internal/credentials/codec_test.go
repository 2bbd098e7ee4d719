package credentials

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase64CodecRoundTrip(t *testing.T) {
	codec := Base64Codec{}
	cases := []Credentials{
		{APIKey: "sk-test-123", AIModel: "gpt-4o-mini"},
		{APIKey: "sk-only-key"},
		{APIKey: "ключ-ünïcode", AIModel: "m"},
	}
	for _, want := range cases {
		token, err := codec.Encode(want)
		require.NoError(t, err)
		got, ok := codec.Decode(token)
		require.True(t, ok, "Decode(%q) reported absent", token)
		assert.Equal(t, want, got)
	}
}

func TestBase64CodecIsNotEncryption(t *testing.T) {
	token, err := Base64Codec{}.Encode(Credentials{APIKey: "sk-visible"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)
	// The stored form is trivially reversible.
	assert.Contains(t, string(raw), "sk-visible")
}

func TestBase64CodecDecodeGarbage(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"!!!not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`{"apiKey":""}`)),
		base64.StdEncoding.EncodeToString([]byte(`["array"]`)),
		strings.Repeat("A", 7),
	}
	for _, in := range inputs {
		got, ok := Base64Codec{}.Decode(in)
		assert.False(t, ok, "Decode(%q) should be absent", in)
		assert.Equal(t, Credentials{}, got)
	}
}

func TestCredentialsStringHidesKey(t *testing.T) {
	c := Credentials{APIKey: "sk-super-secret", AIModel: "gpt-4o"}
	assert.NotContains(t, c.String(), "secret")
	assert.NotContains(t, (&c).String(), "sk-")
}

func TestNormalizeFillsDefaultModel(t *testing.T) {
	c := Credentials{APIKey: "  sk-x  "}.Normalize("gpt-3.5-turbo")
	assert.Equal(t, "sk-x", c.APIKey)
	assert.Equal(t, "gpt-3.5-turbo", c.AIModel)

	c = Credentials{APIKey: "sk-x", AIModel: "gpt-4o"}.Normalize("gpt-3.5-turbo")
	assert.Equal(t, "gpt-4o", c.AIModel)
}
