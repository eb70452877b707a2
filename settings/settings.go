// Package settings persists the engine's small configuration state in the
// shared database: the remote API key, encrypted at rest with a key derived
// from the site secret, and the short-lived validation token issued during
// site registration.
package settings

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	keyAPIKey          = "api_key"
	keyValidationToken = "validation_token"
)

// ErrNoSecret is returned when the site secret is empty; the API key cannot
// be stored without one.
var ErrNoSecret = errors.New("settings: site secret is required")

// Store reads and writes settings rows. The table itself is created by the
// store package's migration; this type only needs the shared handle.
type Store struct {
	db   *sql.DB
	aead cipher.AEAD
	now  func() time.Time
}

// New derives the at-rest encryption key from siteSecret (SHA-256, giving
// the 32 bytes ChaCha20-Poly1305 wants) and returns a settings store over db.
func New(db *sql.DB, siteSecret []byte) (*Store, error) {
	if len(siteSecret) == 0 {
		return nil, ErrNoSecret
	}
	key := sha256.Sum256(siteSecret)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("settings: cipher: %w", err)
	}
	return &Store{db: db, aead: aead, now: time.Now}, nil
}

// StoreAPIKey encrypts and persists the remote API key.
func (s *Store) StoreAPIKey(ctx context.Context, apiKey string) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("settings: nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(apiKey), nil)
	value := base64.StdEncoding.EncodeToString(sealed)

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, expires_at)
		VALUES (?, ?, NULL)`, keyAPIKey, value)
	if err != nil {
		return fmt.Errorf("settings: store api key: %w", err)
	}
	return nil
}

// APIKey returns the decrypted API key, or "" when none is stored.
func (s *Store) APIKey(ctx context.Context) (string, error) {
	value, err := s.get(ctx, keyAPIKey)
	if err != nil || value == "" {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("settings: api key encoding: %w", err)
	}
	if len(sealed) < s.aead.NonceSize() {
		return "", errors.New("settings: api key ciphertext truncated")
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("settings: api key decrypt: %w", err)
	}
	return string(plain), nil
}

// HasAPIKey reports whether an API key is stored, without decrypting it.
func (s *Store) HasAPIKey(ctx context.Context) bool {
	value, err := s.get(ctx, keyAPIKey)
	return err == nil && value != ""
}

// StoreValidationToken keeps the registration validation token until
// expiresAt.
func (s *Store) StoreValidationToken(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, expires_at)
		VALUES (?, ?, ?)`, keyValidationToken, token, expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("settings: store validation token: %w", err)
	}
	return nil
}

// ValidationToken returns the stored validation token, or "" when missing
// or expired.
func (s *Store) ValidationToken(ctx context.Context) (string, error) {
	return s.get(ctx, keyValidationToken)
}

// Cleanup drops the validation token. The API key is deliberately kept so a
// reinstall does not have to re-register the site.
func (s *Store) Cleanup(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM settings WHERE key = ?`, keyValidationToken)
	if err != nil {
		return fmt.Errorf("settings: cleanup: %w", err)
	}
	return nil
}

// get returns the live value for key, treating expired rows as absent.
func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM settings WHERE key = ?`, key).
		Scan(&value, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("settings: get %s: %w", key, err)
	}
	if expiresAt.Valid && expiresAt.Int64 <= s.now().Unix() {
		return "", nil
	}
	return value, nil
}
