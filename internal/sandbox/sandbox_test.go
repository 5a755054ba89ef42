package sandbox

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanityHandshake_Success(t *testing.T) {
	var stdin bytes.Buffer
	echo := bytes.Repeat([]byte{0}, sanityMagicLen)
	stdout := bytes.NewReader(echo)

	err := sanityHandshake(&stdin, stdout, 8)
	require.NoError(t, err)

	sent := stdin.Bytes()
	require.Len(t, sent, sanityMagicLen+len(`{"num_cores":8}`))
	assert.Equal(t, echo, sent[:sanityMagicLen])

	var payload struct {
		NumCores int `json:"num_cores"`
	}
	require.NoError(t, json.Unmarshal(sent[sanityMagicLen:], &payload))
	assert.Equal(t, 8, payload.NumCores)
}

func TestSanityHandshake_MismatchedEcho(t *testing.T) {
	var stdin bytes.Buffer
	badEcho := bytes.Repeat([]byte{0}, sanityMagicLen)
	badEcho[500] = 1
	stdout := bytes.NewReader(badEcho)

	err := sanityHandshake(&stdin, stdout, 8)
	assert.Error(t, err)
}

func TestSanityHandshake_TruncatedEcho(t *testing.T) {
	var stdin bytes.Buffer
	stdout := bytes.NewReader(bytes.Repeat([]byte{0}, sanityMagicLen-1))

	err := sanityHandshake(&stdin, stdout, 8)
	assert.Error(t, err)
}
