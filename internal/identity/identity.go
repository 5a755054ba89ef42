// Package identity persists the long-term signing identity and the
// directory service's grant, and implements the one-shot --vouch flow.
// No server list is stored here.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/permuter-search/permuter/internal/wire"
)

// storedIdentity is the on-disk JSON shape under
// os.UserConfigDir()/permuter/identity.json. Stdlib encoding/json plus
// os.UserConfigDir is used deliberately here rather than a config
// library: the payload is one small key pair and a grant blob, and no
// corpus dependency (viper, afero) improves on reading/writing one file.
type storedIdentity struct {
	PublicKey  string `json:"public_key"`  // base64 ed25519 public key
	PrivateKey string `json:"private_key"` // base64 ed25519 private key
	Grant      string `json:"grant,omitempty"`
}

// Identity wraps the long-term Ed25519 signing key pair used to
// authenticate the wire handshake's ephemeral key exchange.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Grant      []byte // signed capability from the directory service, if any
}

// ConfigPath returns the path identity.json is stored at.
func ConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("identity: resolving user config dir: %w", err)
	}
	return filepath.Join(dir, "permuter", "identity.json"), nil
}

// LoadOrCreate reads the identity at ConfigPath(), generating and
// persisting a fresh one if none exists yet.
func LoadOrCreate() (*Identity, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return decode(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: reading %s: %w", path, err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generating key pair: %w", err)
	}
	id := &Identity{PublicKey: pub, PrivateKey: priv}
	if err := id.save(path); err != nil {
		return nil, err
	}
	return id, nil
}

func decode(data []byte) (*Identity, error) {
	var s storedIdentity
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("identity: parsing identity.json: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(s.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("identity: decoding public key: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(s.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("identity: decoding private key: %w", err)
	}
	var grant []byte
	if s.Grant != "" {
		grant, err = base64.StdEncoding.DecodeString(s.Grant)
		if err != nil {
			return nil, fmt.Errorf("identity: decoding grant: %w", err)
		}
	}
	return &Identity{PublicKey: pub, PrivateKey: priv, Grant: grant}, nil
}

func (id *Identity) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: creating config dir: %w", err)
	}
	s := storedIdentity{
		PublicKey:  base64.StdEncoding.EncodeToString(id.PublicKey),
		PrivateKey: base64.StdEncoding.EncodeToString(id.PrivateKey),
	}
	if id.Grant != nil {
		s.Grant = base64.StdEncoding.EncodeToString(id.Grant)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshaling identity.json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("identity: writing %s: %w", path, err)
	}
	return nil
}

// Wire adapts this long-term identity to the shape internal/wire's
// handshake needs to sign the ephemeral key exchange.
func (id *Identity) Wire() *wire.Identity {
	return &wire.Identity{PublicKey: id.PublicKey, PrivateKey: id.PrivateKey}
}

// SaveGrant persists a newly received directory-service grant alongside
// the existing key pair.
func (id *Identity) SaveGrant(grant []byte) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	id.Grant = grant
	return id.save(path)
}
