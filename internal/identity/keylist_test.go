package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyList_AuthorizedMembership(t *testing.T) {
	pub1, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pub2, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	kl := NewKeyList(pub1)
	assert.True(t, kl.Authorized(pub1))
	assert.False(t, kl.Authorized(pub2))
}

func TestLoadKeyList_RoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "authorized_keys")
	content := "# comment\n\n" + base64.StdEncoding.EncodeToString(pub) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	kl, err := LoadKeyList(path)
	require.NoError(t, err)
	assert.True(t, kl.Authorized(pub))
}
