// Package internal holds the entropy helpers shared by the session and
// challenge subsystems.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// SessionID is a 128-bit random identifier, rendered as unpadded base64url.
type SessionID [16]byte

const (
	challengeSecretSize   = 32
	challengeTokenRawSize = 48
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewCSRFToken returns a 32-byte random value hex-encoded, suitable for a
// JS-readable cookie.
func NewCSRFToken() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

func NewChallengeSecret() ([challengeSecretSize]byte, error) {
	var secret [challengeSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashChallengeSecret(secret [challengeSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

func HashChallengeBytes(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// EncodeChallengeToken packs a challenge id and its secret into the opaque
// token sent to the account's email. The id half lets the store locate the
// record; only the SHA-256 of the secret half is ever persisted.
func EncodeChallengeToken(challengeID string, secret [challengeSecretSize]byte) (string, error) {
	cid, err := ParseSessionID(challengeID)
	if err != nil {
		return "", err
	}

	var raw [challengeTokenRawSize]byte
	copy(raw[:len(cid)], cid[:])
	copy(raw[len(cid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeChallengeToken(token string) (string, [challengeSecretSize]byte, error) {
	var secret [challengeSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != challengeTokenRawSize {
		return "", secret, errors.New("invalid challenge token size")
	}

	var cid SessionID
	copy(cid[:], raw[:len(cid)])
	copy(secret[:], raw[len(cid):])

	return cid.String(), secret, nil
}
