package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Stored secrets may be encrypted at rest with AES-GCM; such values carry
// the "enc:" prefix followed by base64(nonce || ciphertext). Values
// without the prefix, and values that fail to decrypt, are used as-is so
// that configurations from before encryption keep working.
const encryptedPrefix = "enc:"

// EncryptSecret encrypts a plaintext secret for storage in a config file.
func EncryptSecret(plaintext, secretKey string) (string, error) {
	if secretKey == "" {
		return "", fmt.Errorf("secret_key must be set to encrypt secrets")
	}

	gcm, err := newGCM(secretKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptSecrets resolves every encrypted secret in the configuration in
// place. A value that fails to decrypt is logged as a warning and kept
// as-is.
func (c *Config) DecryptSecrets(log *zap.SugaredLogger) {
	c.Identity.Token = c.revealSecret("identity.token", c.Identity.Token, log)
	c.Auth.JWTSecret = c.revealSecret("auth.jwt_secret", c.Auth.JWTSecret, log)
	c.Redis.Password = c.revealSecret("redis.password", c.Redis.Password, log)
	c.GitHub.Token = c.revealSecret("github.token", c.GitHub.Token, log)
	c.Cloudflare.Token = c.revealSecret("cloudflare.token", c.Cloudflare.Token, log)
	c.Encoding.Key = c.revealSecret("encoding.key", c.Encoding.Key, log)

	for realmID, realm := range c.Realms {
		realm.GitHub.Token = c.revealSecret(fmt.Sprintf("realms.%s.github.token", realmID), realm.GitHub.Token, log)
		realm.Cloudflare.Token = c.revealSecret(fmt.Sprintf("realms.%s.cloudflare.token", realmID), realm.Cloudflare.Token, log)
		realm.EncodingKey = c.revealSecret(fmt.Sprintf("realms.%s.encoding_key", realmID), realm.EncodingKey, log)
		c.Realms[realmID] = realm
	}
}

func (c *Config) revealSecret(field, value string, log *zap.SugaredLogger) string {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value
	}

	plaintext, err := decryptSecret(value, c.SecretKey)
	if err != nil {
		if log != nil {
			log.Warnw("failed to decrypt secret, using stored value as plaintext",
				"field", field,
				"error", err,
			)
		}
		return value
	}
	return plaintext
}

func decryptSecret(value, secretKey string) (string, error) {
	if secretKey == "" {
		return "", fmt.Errorf("secret_key is not set")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	gcm, err := newGCM(secretKey)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("secret too short")
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(secretKey string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(secretKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
