package wire

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// NonceSize is the secretbox nonce length; nonces increase monotonically
// per direction and are never reused under a given symmetric key.
const NonceSize = 24

// KeySize is the symmetric key length nacl/secretbox and nacl/box share.
const KeySize = 32

// Identity is a long-term Ed25519 signing identity, used to authenticate
// the ephemeral X25519 key exchange public key at handshake time.
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateIdentity creates a fresh signing identity.
func GenerateIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wire: generating identity: %w", err)
	}
	return &Identity{PublicKey: pub, PrivateKey: priv}, nil
}

// SignEphemeralKey signs an ephemeral X25519 public key so the peer can
// authenticate it came from this identity.
func (id *Identity) SignEphemeralKey(ephemeralPub *[KeySize]byte) []byte {
	return ed25519.Sign(id.PrivateKey, ephemeralPub[:])
}

// VerifyEphemeralKey checks a peer's signature over its ephemeral public
// key against its claimed long-term signing public key.
func VerifyEphemeralKey(peerSigningPub ed25519.PublicKey, ephemeralPub *[KeySize]byte, sig []byte) error {
	if !ed25519.Verify(peerSigningPub, ephemeralPub[:], sig) {
		return errors.New("wire: ephemeral key exchange signature verification failed")
	}
	return nil
}

// GenerateEphemeralKeyPair creates one X25519 key pair for a single
// handshake.
func GenerateEphemeralKeyPair() (pub, priv *[KeySize]byte, err error) {
	pub, priv, err = box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: generating ephemeral key pair: %w", err)
	}
	return pub, priv, nil
}

// DeriveSharedKey computes the symmetric key both sides use for
// SecretBox framing from this side's ephemeral private key and the
// peer's ephemeral public key.
func DeriveSharedKey(peerPub, ownPriv *[KeySize]byte) *[KeySize]byte {
	var shared [KeySize]byte
	box.Precompute(&shared, peerPub, ownPriv)
	return &shared
}

// Direction distinguishes the two halves of a full-duplex encrypted
// session. Both ends derive the identical symmetric key via
// DeriveSharedKey (or already share one out of band, for a preshared
// Conn), so a nonce stream that simply counted from zero on each side
// would seal the first client->server frame and the first
// server->client frame under the same (key, nonce) pair, leaking the
// XOR of the two plaintexts. Tagging each side's stream with its
// Direction keeps the two counters in disjoint halves of the nonce
// space instead.
type Direction uint8

const (
	// DirectionClient marks the stream of frames flowing from the
	// session's initiating side (the network client, or the host
	// talking to its sandboxed evaluator subprocess).
	DirectionClient Direction = 0
	// DirectionServer marks the stream of frames flowing from the
	// session's accepting side (the network server, or the evaluator
	// subprocess replying to its host).
	DirectionServer Direction = 1
)

// NonceStream produces monotonically increasing 24-byte nonces for one
// direction of a session. Nonce reuse under the same key would break
// SecretBox's authentication guarantee, so each direction owns its own
// counter and, via its Direction, its own half of the nonce space: the
// two directions never emit the same nonce under the shared key.
type NonceStream struct {
	counter   uint64
	direction Direction
}

// NewNonceStream builds a NonceStream for one side of a session.
func NewNonceStream(dir Direction) NonceStream {
	return NonceStream{direction: dir}
}

// Next returns the next nonce in the stream: the counter shifted left
// one bit with the direction folded into the low bit, so a client
// stream only ever emits even counters and a server stream only ever
// emits odd ones, encoded in the first 8 bytes with the rest zero-filled.
func (n *NonceStream) Next() *[NonceSize]byte {
	var nonce [NonceSize]byte
	c := (n.counter << 1) | uint64(n.direction)
	n.counter++
	for i := 0; i < 8; i++ {
		nonce[i] = byte(c >> (8 * i))
	}
	return &nonce
}

// Seal encrypts plaintext with key under the next nonce in the stream.
func Seal(stream *NonceStream, key *[KeySize]byte, plaintext []byte) []byte {
	nonce := stream.Next()
	return secretbox.Seal(nonce[:], plaintext, nonce, key)
}

// Open decrypts a SecretBox-sealed message (nonce prepended, as Seal
// produces) with key, verifying the authentication tag. A single bit
// flip anywhere in the ciphertext or the tag causes Open to fail.
func Open(key *[KeySize]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize {
		return nil, errors.New("wire: sealed message shorter than nonce")
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[NonceSize:], &nonce, key)
	if !ok {
		return nil, errors.New("wire: decryption failed: authentication tag mismatch")
	}
	return plaintext, nil
}
