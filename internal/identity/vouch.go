package identity

import (
	"encoding/base64"
	"fmt"
)

// DirectoryService is the external collaborator that issues signed
// server lists and capability grants; this package only consumes its
// output (spec.md §1's Non-goals: no authenticated discovery
// implementation here).
type DirectoryService interface {
	// RequestGrant exchanges this identity's public key for a signed
	// grant blob a server operator can use to authorize the client.
	RequestGrant(publicKey []byte) (grant []byte, err error)
}

// Vouch runs the one-shot identity-grant flow: ensure a long-term
// signing key exists, request a grant from the directory service, save
// it, and return a printable export blob a server operator can paste
// into their authorization list (original_source/src/main.py's
// run_vouch).
func Vouch(ds DirectoryService) (exportBlob string, err error) {
	id, err := LoadOrCreate()
	if err != nil {
		return "", err
	}

	grant, err := ds.RequestGrant(id.PublicKey)
	if err != nil {
		return "", fmt.Errorf("identity: requesting grant: %w", err)
	}

	if err := id.SaveGrant(grant); err != nil {
		return "", err
	}

	return fmt.Sprintf("permuter-identity:%s", base64.StdEncoding.EncodeToString(id.PublicKey)), nil
}
