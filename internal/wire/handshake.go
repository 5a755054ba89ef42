package wire

import (
	"crypto/ed25519"
	"fmt"
	"io"
)

// handshakeMsg is the one-shot cleartext message each side sends before
// any SecretBox framing begins: a long-term signing public key plus a
// signed ephemeral X25519 public key.
type handshakeMsg struct {
	SigningPub   ed25519.PublicKey
	EphemeralPub [KeySize]byte
	Signature    []byte
}

func encodeHandshake(m handshakeMsg) []byte {
	buf := make([]byte, 0, ed25519.PublicKeySize+KeySize+ed25519.SignatureSize)
	buf = append(buf, m.SigningPub...)
	buf = append(buf, m.EphemeralPub[:]...)
	buf = append(buf, m.Signature...)
	return buf
}

func decodeHandshake(b []byte) (handshakeMsg, error) {
	want := ed25519.PublicKeySize + KeySize + ed25519.SignatureSize
	if len(b) != want {
		return handshakeMsg{}, fmt.Errorf("wire: malformed handshake message: got %d bytes, want %d", len(b), want)
	}
	var m handshakeMsg
	m.SigningPub = append(ed25519.PublicKey(nil), b[:ed25519.PublicKeySize]...)
	copy(m.EphemeralPub[:], b[ed25519.PublicKeySize:ed25519.PublicKeySize+KeySize])
	m.Signature = append([]byte(nil), b[ed25519.PublicKeySize+KeySize:]...)
	return m, nil
}

// AuthorizedKeys reports whether a peer's long-term signing public key
// is allowed to establish a session. The server's authorized set comes
// from the directory service's signed grant (internal/identity); the
// client's comes from the server list it was vouched for.
type AuthorizedKeys interface {
	Authorized(pub ed25519.PublicKey) bool
}

// ClientHandshake performs the client side of the key exchange over rw
// and returns the derived shared key plus the server's signing public
// key (for display/audit).
func ClientHandshake(rw io.ReadWriter, id *Identity, serverKeys AuthorizedKeys) (*[KeySize]byte, ed25519.PublicKey, error) {
	ephPub, ephPriv, err := GenerateEphemeralKeyPair()
	if err != nil {
		return nil, nil, err
	}

	out := handshakeMsg{
		SigningPub:   id.PublicKey,
		EphemeralPub: *ephPub,
		Signature:    id.SignEphemeralKey(ephPub),
	}
	if err := WriteFrame(rw, encodeHandshake(out)); err != nil {
		return nil, nil, fmt.Errorf("wire: sending client handshake: %w", err)
	}

	raw, err := ReadFrame(rw)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: reading server handshake: %w", err)
	}
	in, err := decodeHandshake(raw)
	if err != nil {
		return nil, nil, err
	}
	if serverKeys != nil && !serverKeys.Authorized(in.SigningPub) {
		return nil, nil, fmt.Errorf("wire: server signing key not in authorized set")
	}
	if err := VerifyEphemeralKey(in.SigningPub, &in.EphemeralPub, in.Signature); err != nil {
		return nil, nil, err
	}

	shared := DeriveSharedKey(&in.EphemeralPub, ephPriv)
	return shared, in.SigningPub, nil
}

// ServerHandshake performs the server side: read the client's
// handshake, verify it against authorizedClients, and reply with its
// own signed ephemeral key.
func ServerHandshake(rw io.ReadWriter, id *Identity, authorizedClients AuthorizedKeys) (*[KeySize]byte, ed25519.PublicKey, error) {
	raw, err := ReadFrame(rw)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: reading client handshake: %w", err)
	}
	in, err := decodeHandshake(raw)
	if err != nil {
		return nil, nil, err
	}
	if authorizedClients != nil && !authorizedClients.Authorized(in.SigningPub) {
		return nil, nil, fmt.Errorf("wire: client signing key not in authorized set")
	}
	if err := VerifyEphemeralKey(in.SigningPub, &in.EphemeralPub, in.Signature); err != nil {
		return nil, nil, err
	}

	ephPub, ephPriv, err := GenerateEphemeralKeyPair()
	if err != nil {
		return nil, nil, err
	}
	out := handshakeMsg{
		SigningPub:   id.PublicKey,
		EphemeralPub: *ephPub,
		Signature:    id.SignEphemeralKey(ephPub),
	}
	if err := WriteFrame(rw, encodeHandshake(out)); err != nil {
		return nil, nil, fmt.Errorf("wire: sending server handshake: %w", err)
	}

	shared := DeriveSharedKey(&in.EphemeralPub, ephPriv)
	return shared, in.SigningPub, nil
}
