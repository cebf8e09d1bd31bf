// Package encoding implements the obfuscated whitelist wire format: the
// plaintext is suffixed with an additive checksum, XOR-ed with a cyclic
// key and base64 encoded. The XOR pass is obfuscation for the downstream
// consumer, not cryptography; the checksum catches corruption and naive
// tampering.
package encoding

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyKey is returned when an empty key is configured. Encoding must
// fail fast rather than silently produce an un-obfuscated payload.
var ErrEmptyKey = errors.New("encoding key must not be empty")

// ErrChecksumMismatch is returned by Decode when the embedded checksum
// does not match the decoded plaintext.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Checksum computes the base-10 decimal sum of all byte values of the
// newline-normalized (CRLF to LF, trimmed) plaintext.
func Checksum(plaintext string) int64 {
	normalized := strings.TrimSpace(strings.ReplaceAll(plaintext, "\r\n", "\n"))
	var sum int64
	for _, b := range []byte(normalized) {
		sum += int64(b)
	}
	return sum
}

// Encode produces the reversible encoded form of plaintext:
// base64(xor(plaintext + "|" + checksum, key)).
func Encode(plaintext, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	payload := fmt.Sprintf("%s|%d", plaintext, Checksum(plaintext))
	return base64.StdEncoding.EncodeToString(xorBytes([]byte(payload), []byte(key))), nil
}

// Decode reverses Encode and verifies the embedded checksum against the
// recovered plaintext.
func Decode(encoded, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	payload := string(xorBytes(raw, []byte(key)))
	sep := strings.LastIndexByte(payload, '|')
	if sep < 0 {
		return "", ErrChecksumMismatch
	}

	plaintext := payload[:sep]
	sum, err := strconv.ParseInt(payload[sep+1:], 10, 64)
	if err != nil {
		return "", ErrChecksumMismatch
	}
	if sum != Checksum(plaintext) {
		return "", ErrChecksumMismatch
	}
	return plaintext, nil
}

func xorBytes(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
