// Package pkce generates the random material of the back-office: proof keys
// for e-mail confirmation links and workspace instance ids.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
)

const (
	MethodS256 = "S256"

	// verifierEntropy gives a 43 character verifier, the minimum length.
	verifierEntropy = 32

	InstanceIDLength = 32
	// InstanceIDAlphabet holds the characters of an instance id.
	InstanceIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"
)

// PKCE is a proof key for the code exchange of an e-mail confirmation link.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source draws from Reader, crypto/rand when nil.
type Source struct {
	Reader io.Reader
}

func (s Source) reader() io.Reader {
	if s.Reader == nil {
		return rand.Reader
	}

	return s.Reader
}

func (s Source) fill(b []byte) {
	// crypto/rand never fails; a test reader running dry is a bug in the test
	if _, err := io.ReadFull(s.reader(), b); err != nil {
		panic("pkce: reading random bytes: " + err.Error())
	}
}

// Challenge returns the S256 challenge of verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s Source) PKCE() PKCE {
	raw := make([]byte, verifierEntropy)
	s.fill(raw)
	verifier := base64.RawURLEncoding.EncodeToString(raw)

	return PKCE{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}
}

// InstanceID returns a random identifier for a browser workspace instance,
// about 191 bits of entropy.
func (s Source) InstanceID() string {
	// largest multiple of the alphabet size below 256, so every character is
	// equally likely
	const limit = 256 - 256%len(InstanceIDAlphabet)

	id := make([]byte, 0, InstanceIDLength)
	buf := make([]byte, InstanceIDLength)
	for len(id) < InstanceIDLength {
		s.fill(buf)
		for _, b := range buf {
			if int(b) >= limit || len(id) == InstanceIDLength {
				continue
			}
			id = append(id, InstanceIDAlphabet[int(b)%len(InstanceIDAlphabet)])
		}
	}

	return string(id)
}
