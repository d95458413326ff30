package lsat

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rootKey = []byte("0123456789abcdef0123456789abcdef")

func mintTestToken(t *testing.T) (header string, preimage []byte, paymentHash []byte) {
	preimage = make([]byte, 32)
	_, err := rand.Read(preimage)
	require.NoError(t, err)
	hash := sha256.Sum256(preimage)
	paymentHash = hash[:]

	mac, err := Mint(rootKey, "micropay", paymentHash)
	require.NoError(t, err)
	macBytes, err := mac.MarshalBinary()
	require.NoError(t, err)

	header = fmt.Sprintf("%s %s:%s",
		AuthScheme,
		base64.StdEncoding.EncodeToString(macBytes),
		hex.EncodeToString(preimage),
	)
	return header, preimage, paymentHash
}

func TestParseAndVerifyRoundTrip(t *testing.T) {
	header, _, paymentHash := mintTestToken(t)

	token, err := Parse(header)
	require.NoError(t, err)
	assert.NoError(t, token.Verify(rootKey))

	boundHash := token.PaymentHash()
	assert.Equal(t, hex.EncodeToString(paymentHash), boundHash)
	assert.Equal(t, boundHash, token.Key())
}

func TestParseRejectsMissingScheme(t *testing.T) {
	_, err := Parse("Bearer deadbeef")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestParseRejectsMissingPreimage(t *testing.T) {
	_, err := Parse(AuthScheme + " bm90LWEtbWFjYXJvb24=")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestParseRejectsGarbageMacaroon(t *testing.T) {
	_, err := Parse(AuthScheme + " !!!!:" + hex.EncodeToString(make([]byte, 32)))
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestParseRejectsShortPreimage(t *testing.T) {
	header, _, _ := mintTestToken(t)
	token, err := Parse(header)
	require.NoError(t, err)
	macBytes, err := token.Mac.MarshalBinary()
	require.NoError(t, err)

	bad := fmt.Sprintf("%s %s:abcd", AuthScheme, base64.StdEncoding.EncodeToString(macBytes))
	_, err = Parse(bad)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestVerifyRejectsWrongPreimage(t *testing.T) {
	header, _, _ := mintTestToken(t)
	token, err := Parse(header)
	require.NoError(t, err)

	// well-formed but not the secret the invoice was created for
	token.Preimage = make([]byte, 32)
	err = token.Verify(rootKey)
	assert.ErrorIs(t, err, ErrTokenUnsatisfied)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	header, _, _ := mintTestToken(t)
	token, err := Parse(header)
	require.NoError(t, err)

	err = token.Verify([]byte("another-root-key-entirely-000000"))
	assert.ErrorIs(t, err, ErrTokenUnsatisfied)
}

func TestMintRejectsShortHash(t *testing.T) {
	_, err := Mint(rootKey, "micropay", []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestChallengeFormat(t *testing.T) {
	header, _, _ := mintTestToken(t)
	token, err := Parse(header)
	require.NoError(t, err)

	challenge, err := Challenge(token.Mac, "lnbc10n1test")
	require.NoError(t, err)
	assert.Contains(t, challenge, AuthScheme+" macaroon=\"")
	assert.Contains(t, challenge, "invoice=\"lnbc10n1test\"")
}

func TestChallengeRoundTrip(t *testing.T) {
	header, preimage, paymentHash := mintTestToken(t)
	token, err := Parse(header)
	require.NoError(t, err)

	challenge, err := Challenge(token.Mac, "lnbc10n1test")
	require.NoError(t, err)

	// a client rebuilds the token from the challenge after paying
	mac, err := MacaroonFromChallenge(challenge)
	require.NoError(t, err)
	rebuilt := &Token{Mac: mac, Preimage: preimage}
	assert.NoError(t, rebuilt.Verify(rootKey))
	assert.Equal(t, hex.EncodeToString(paymentHash), rebuilt.PaymentHash())

	reparsed, err := Parse(rebuilt.Header())
	require.NoError(t, err)
	assert.NoError(t, reparsed.Verify(rootKey))
}

func TestMacaroonFromChallengeRejectsGarbage(t *testing.T) {
	_, err := MacaroonFromChallenge("LSAT invoice=\"lnbc10n1test\"")
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = MacaroonFromChallenge("LSAT macaroon=\"not base64!\", invoice=\"x\"")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}
