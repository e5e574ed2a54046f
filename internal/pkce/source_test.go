package pkce

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChallenge(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}

func TestSource_PKCE(t *testing.T) {
	p := Source{}.PKCE()

	assert.Len(t, p.Verifier, 43)
	assert.Equal(t, MethodS256, p.Method)
	assert.Equal(t, Challenge(p.Verifier), p.Challenge, "challenge is not the S256 of the verifier")
	assert.NotEqual(t, p.Verifier, Source{}.PKCE().Verifier, "verifiers repeat")
}

func TestSource_InstanceID(t *testing.T) {
	t.Run("Random", func(t *testing.T) {
		id := Source{}.InstanceID()

		assert.Len(t, id, InstanceIDLength)
		for _, c := range id {
			assert.True(t, strings.ContainsRune(InstanceIDAlphabet, c), "unexpected character %q", c)
		}
		assert.NotEqual(t, id, Source{}.InstanceID(), "instance ids repeat")
	})

	t.Run("Skips biased bytes", func(t *testing.T) {
		// 255 is above the last full round of the alphabet, 1 maps to "1"
		in := append(bytes.Repeat([]byte{255}, InstanceIDLength), bytes.Repeat([]byte{1}, InstanceIDLength)...)

		id := Source{Reader: bytes.NewReader(in)}.InstanceID()
		assert.Equal(t, strings.Repeat("1", InstanceIDLength), id)
	})
}
