package encoding

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		key       string
	}{
		{
			name:      "single line",
			plaintext: "SomeUser,station:truavatar",
			key:       "secret-key",
		},
		{
			name:      "multiple lines",
			plaintext: "UserA,station\nUserB,truavatar:station\nUserC,",
			key:       "k",
		},
		{
			name:      "empty plaintext",
			plaintext: "",
			key:       "secret-key",
		},
		{
			name:      "unicode display names",
			plaintext: "Ünïcödé,station",
			key:       "another key with spaces",
		},
		{
			name:      "pipe character in plaintext",
			plaintext: "odd|name,station",
			key:       "secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Encode(tt.plaintext, tt.key)
			require.NoError(t, err)

			decoded, err := Decode(encoded, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decoded)
		})
	}
}

func TestEncodeEmptyKey(t *testing.T) {
	_, err := Encode("content", "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = Decode("content", "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestDecodeWrongKey(t *testing.T) {
	encoded, err := Encode("UserA,station", "right-key")
	require.NoError(t, err)

	_, err = Decode(encoded, "wrong-key")
	assert.Error(t, err)
}

func TestDecodeTamperedPayload(t *testing.T) {
	encoded, err := Encode("UserA,station", "secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	raw[0] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = Decode(tampered, "secret")
	assert.Error(t, err)
}

func TestChecksumNormalizesNewlines(t *testing.T) {
	assert.Equal(t, Checksum("a\nb"), Checksum("a\r\nb"))
	assert.Equal(t, Checksum("a\nb"), Checksum("a\nb\n"))
}
