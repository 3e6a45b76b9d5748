package msgsig_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/kashguard/go-sphinx-relay/internal/lightning/msgsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tv42/zbase32"
)

func testKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, _ := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{0x11}, 32))
	return priv
}

func TestSignRecoverRoundTrip(t *testing.T) {
	priv := testKey(t)
	want := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	for _, msg := range [][]byte{{}, []byte("hello"), bytes.Repeat([]byte{0xfe}, 2048)} {
		sig, err := msgsig.Sign(priv, msg)
		require.NoError(t, err)

		env, err := zbase32.DecodeString(sig)
		require.NoError(t, err)
		require.Len(t, env, msgsig.EnvelopeSize)
		assert.True(t, env[0] == 31 || env[0] == 32)

		got, err := msgsig.RecoverPubkey(msg, sig)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRecoverOtherMessageGivesOtherKey(t *testing.T) {
	priv := testKey(t)
	want := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	sig, err := msgsig.Sign(priv, []byte("original"))
	require.NoError(t, err)

	got, err := msgsig.RecoverPubkey([]byte("tampered"), sig)
	if err == nil {
		assert.NotEqual(t, want, got)
	}
}

func TestEnvelopeAndSplit(t *testing.T) {
	rs := bytes.Repeat([]byte{0xab}, 64)
	env, err := msgsig.Envelope(1, rs)
	require.NoError(t, err)
	assert.Equal(t, byte(32), env[0])

	recID, gotRS, err := msgsig.Split(env)
	require.NoError(t, err)
	assert.Equal(t, byte(1), recID)
	assert.Equal(t, rs, gotRS)

	_, err = msgsig.Envelope(0, rs[:10])
	assert.Error(t, err)
	_, err = msgsig.Envelope(7, rs)
	assert.Error(t, err)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := msgsig.Decode(zbase32.EncodeToString([]byte{1, 2, 3}))
	assert.Error(t, err)

	_, err = msgsig.Decode("!!not-zbase32!!")
	assert.Error(t, err)
}

func TestDigestUsesPrefix(t *testing.T) {
	a := msgsig.Digest([]byte("x"))
	b := msgsig.Digest([]byte("x"))
	c := msgsig.Digest([]byte("y"))
	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
