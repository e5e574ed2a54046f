// Package csrf issues and checks form tokens bound to a workspace instance.
//
// A token is hex(hmac).hex(nonce).unix-issued-at; the HMAC covers the
// instance id, the nonce and the issue time.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const nonceLength = 32

func formMessage(instanceID, nonce string, issuedAt int64) []byte {
	return fmt.Appendf(nil, "%d!%s!%d!%s!%d", len(instanceID), instanceID, len(nonce), nonce, issuedAt)
}

func sign(instanceID, nonce string, issuedAt int64, key []byte) []byte {
	hash := hmac.New(sha256.New, key)
	hash.Write(formMessage(instanceID, nonce, issuedAt))

	return hash.Sum(nil)
}

func NewToken(instanceID string, key []byte, now time.Time) string {
	buf := make([]byte, nonceLength)
	_, _ = rand.Read(buf)
	nonce := hex.EncodeToString(buf)
	issuedAt := now.Unix()

	return hex.EncodeToString(sign(instanceID, nonce, issuedAt, key)) + "." + nonce + "." + strconv.FormatInt(issuedAt, 10)
}

// Validate reports whether token was issued for instanceID with key and is
// not older than maxAge. A zero maxAge disables the age check.
func Validate(token, instanceID string, key []byte, now time.Time, maxAge time.Duration) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}

	received, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}

	issuedAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return false
	}

	if !hmac.Equal(received, sign(instanceID, parts[1], issuedAt, key)) {
		return false
	}

	if maxAge > 0 && now.Sub(time.Unix(issuedAt, 0)) > maxAge {
		return false
	}

	return true
}
