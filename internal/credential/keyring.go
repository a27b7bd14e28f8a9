package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/goccy/go-json"

	"github.com/nhle/hrnotify/internal/model"
)

const serviceName = "hrnotify"

const (
	tokenKey = "session-token"
	userKey  = "session-user"
)

// ErrNoSession is returned when no session has been stored yet.
var ErrNoSession = errors.New("no stored session")

// Session is the authenticated identity the engine runs as.
type Session struct {
	Token  string
	UserID string
	Role   model.Role
}

// RoleContext returns the viewer identity of the session.
func (s Session) RoleContext() model.RoleContext {
	return model.RoleContext{Role: s.Role, UserID: s.UserID}
}

// Vault stores session credentials in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// OpenVault opens the system keyring.
func OpenVault() (*Vault, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return NewVault(ring), nil
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
		FileDir:                  "~/.config/hrnotify/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("hrnotify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (v *Vault) Set(key string, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. Missing keys are not an error.
func (v *Vault) Delete(key string) error {
	err := v.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

type storedUser struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// SaveSession stores the token and the user identity.
func (v *Vault) SaveSession(s Session) error {
	if s.Token == "" || s.UserID == "" {
		return fmt.Errorf("saving session: token and user id are required")
	}
	if err := v.Set(tokenKey, s.Token); err != nil {
		return err
	}
	data, err := json.Marshal(storedUser{UserID: s.UserID, Role: string(s.Role)})
	if err != nil {
		return fmt.Errorf("encoding session user: %w", err)
	}
	return v.Set(userKey, string(data))
}

// LoadSession returns the stored session or ErrNoSession.
func (v *Vault) LoadSession() (Session, error) {
	token, err := v.Get(tokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}

	raw, err := v.Get(userKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}

	var u storedUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return Session{}, fmt.Errorf("decoding session user: %w", err)
	}

	return Session{
		Token:  token,
		UserID: u.UserID,
		Role:   model.ParseRole(u.Role),
	}, nil
}

// ClearSession removes the stored token and identity.
func (v *Vault) ClearSession() error {
	if err := v.Delete(tokenKey); err != nil {
		return err
	}
	return v.Delete(userKey)
}
