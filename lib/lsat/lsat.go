// Package lsat mints and verifies the bearer tokens that gate metered
// access. A token is an HMAC-signed macaroon bound to one invoice's payment
// hash, plus the preimage the payer learned by paying that invoice:
//
//	Authorization: LSAT <base64 macaroon>:<hex preimage>
//
// The macaroon proves the token was issued by us for that invoice; the
// preimage proves the invoice was paid.
package lsat

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/macaroon.v2"
)

const (
	// AuthScheme is the Authorization header scheme.
	AuthScheme = "LSAT"

	hashLen  = 32
	nonceLen = 32
)

var (
	// ErrTokenMalformed means the header could not be decoded at all.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenUnsatisfied means the token decoded fine but either the
	// signature is not ours or the preimage does not match the bound
	// payment hash.
	ErrTokenUnsatisfied = errors.New("token unsatisfied")
)

// Token is a parsed, not yet verified credential.
type Token struct {
	Mac      *macaroon.Macaroon
	Preimage []byte
}

// PaymentHash extracts the payment hash the macaroon identifier is bound
// to. Parse and Mint guarantee the identifier length, so a Token always
// carries a hash.
func (t *Token) PaymentHash() string {
	id := t.Mac.Id()
	if len(id) < hashLen {
		return ""
	}
	return hex.EncodeToString(id[:hashLen])
}

// Key is the canonical ledger key for this token. Two tokens for the same
// invoice redeem from the same quota row.
func (t *Token) Key() string {
	return t.PaymentHash()
}

// Mint creates a new macaroon bound to the given payment hash. The nonce
// makes identifiers unique across re-challenges for the same invoice.
func Mint(rootKey []byte, location string, paymentHash []byte) (*macaroon.Macaroon, error) {
	if len(paymentHash) != hashLen {
		return nil, fmt.Errorf("payment hash must be %d bytes, got %d", hashLen, len(paymentHash))
	}
	id := make([]byte, hashLen+nonceLen)
	copy(id, paymentHash)
	if _, err := rand.Read(id[hashLen:]); err != nil {
		return nil, err
	}
	return macaroon.New(rootKey, id, location, macaroon.LatestVersion)
}

// Challenge renders the WWW-Authenticate header value carrying the macaroon
// and the invoice the client has to pay.
func Challenge(mac *macaroon.Macaroon, paymentRequest string) (string, error) {
	macBytes, err := mac.MarshalBinary()
	if err != nil {
		return "", err
	}
	macB64 := base64.StdEncoding.EncodeToString(macBytes)
	return fmt.Sprintf("%s macaroon=\"%s\", invoice=\"%s\"", AuthScheme, macB64, paymentRequest), nil
}

// MacaroonFromChallenge extracts the macaroon from a WWW-Authenticate
// challenge produced by Challenge. Clients use it to rebuild the token
// once they have paid.
func MacaroonFromChallenge(challenge string) (*macaroon.Macaroon, error) {
	const marker = "macaroon=\""
	start := strings.Index(challenge, marker)
	if start < 0 {
		return nil, fmt.Errorf("%w: challenge carries no macaroon", ErrTokenMalformed)
	}
	rest := challenge[start+len(marker):]
	end := strings.Index(rest, "\"")
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated macaroon", ErrTokenMalformed)
	}
	macBytes, err := base64.StdEncoding.DecodeString(rest[:end])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	return mac, nil
}

// Header renders the Authorization header value for a token.
func (t *Token) Header() string {
	macBytes, err := t.Mac.MarshalBinary()
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s %s:%s", AuthScheme,
		base64.StdEncoding.EncodeToString(macBytes),
		hex.EncodeToString(t.Preimage))
}

// Parse decodes an Authorization header of the form
// "LSAT <base64 macaroon>:<hex preimage>".
func Parse(header string) (*Token, error) {
	if !strings.HasPrefix(header, AuthScheme+" ") {
		return nil, fmt.Errorf("%w: missing %s scheme", ErrTokenMalformed, AuthScheme)
	}
	payload := strings.TrimPrefix(header, AuthScheme+" ")
	macPart, preimagePart, found := strings.Cut(payload, ":")
	if !found {
		return nil, fmt.Errorf("%w: missing preimage separator", ErrTokenMalformed)
	}
	macBytes, err := base64.StdEncoding.DecodeString(macPart)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if len(mac.Id()) != hashLen+nonceLen {
		return nil, fmt.Errorf("%w: unexpected identifier length %d", ErrTokenMalformed, len(mac.Id()))
	}
	preimage, err := hex.DecodeString(preimagePart)
	if err != nil || len(preimage) != hashLen {
		return nil, fmt.Errorf("%w: bad preimage encoding", ErrTokenMalformed)
	}
	return &Token{Mac: mac, Preimage: preimage}, nil
}

// Verify checks the macaroon signature against our root key and that the
// preimage hashes to the bound payment hash. Only a token passing both is
// proof of payment.
func (t *Token) Verify(rootKey []byte) error {
	if _, err := t.Mac.VerifySignature(rootKey, nil); err != nil {
		return fmt.Errorf("%w: invalid signature", ErrTokenUnsatisfied)
	}
	hash := t.PaymentHash()
	if hash == "" {
		return fmt.Errorf("%w: unexpected identifier length %d", ErrTokenMalformed, len(t.Mac.Id()))
	}
	preimageHash := sha256.Sum256(t.Preimage)
	if hex.EncodeToString(preimageHash[:]) != hash {
		return fmt.Errorf("%w: preimage does not match payment hash", ErrTokenUnsatisfied)
	}
	return nil
}
