package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "caseflow"

// accessTokenKey is the fixed storage identifier for the API access token.
const accessTokenKey = "access_token"

// TokenSource supplies the current access credential. Token is read
// synchronously before every connection attempt; an error means no
// credential is available (e.g. before login).
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource returning a fixed value, for tests and
// for environments that inject the token directly.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", fmt.Errorf("no access token configured")
	}
	return string(t), nil
}

// KeyringSource reads the access token from the system keyring on
// every call, so a token refreshed by the host app is picked up
// without restarting the client.
type KeyringSource struct{}

func (KeyringSource) Token() (string, error) {
	return Get(accessTokenKey)
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/caseflow/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("caseflow-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
