package identity

import (
	"bufio"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// KeyList is a static set of authorized long-term Ed25519 public keys,
// one base64-encoded key per line. It implements wire.AuthorizedKeys.
// Populating it is an operator concern: in production the entries come
// from grants the directory service signed (spec.md §1's Non-goals
// exclude implementing that service here; this consumes its output).
type KeyList struct {
	keys map[string]bool
}

// NewKeyList builds a KeyList from a set of raw public keys.
func NewKeyList(keys ...ed25519.PublicKey) *KeyList {
	kl := &KeyList{keys: make(map[string]bool, len(keys))}
	for _, k := range keys {
		kl.keys[string(k)] = true
	}
	return kl
}

// LoadKeyList reads one base64 public key per line from path, skipping
// blank lines and "#"-prefixed comments.
func LoadKeyList(path string) (*KeyList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("identity: opening authorized-keys file %s: %w", path, err)
	}
	defer f.Close()

	kl := &KeyList{keys: make(map[string]bool)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("identity: decoding authorized key %q: %w", line, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("identity: authorized key %q has wrong length", line)
		}
		kl.keys[string(raw)] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("identity: reading authorized-keys file %s: %w", path, err)
	}
	return kl, nil
}

// Authorized implements wire.AuthorizedKeys.
func (kl *KeyList) Authorized(pub ed25519.PublicKey) bool {
	if kl == nil {
		return true
	}
	return kl.keys[string(pub)]
}
