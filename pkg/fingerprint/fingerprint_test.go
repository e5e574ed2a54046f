package fingerprint

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTPRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       *http.Request
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name: "Nil request",
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorIs(t, err, ErrNilRequest)
			},
		},
		{name: "No headers", req: httptest.NewRequest(http.MethodGet, "/", nil), assertErr: assert.NoError},
		{
			name: "Browser headers",
			req: func() *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("User-Agent", "Mozilla/5.0")
				r.Header.Set("Accept-Language", "de-DE")
				return r
			}(),
			assertErr: assert.NoError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fp, err := FromHTTPRequest(tc.req)
			if !tc.assertErr(t, err) || err != nil {
				return
			}
			assert.Len(t, fp, 64)
		})
	}
}

func TestFromHTTPRequest_Distinguishes(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.Header.Set("User-Agent", "Mozilla/5.0")

	b := httptest.NewRequest(http.MethodGet, "/other", nil)
	b.Header.Set("User-Agent", "Mozilla/5.0")

	c := httptest.NewRequest(http.MethodGet, "/", nil)
	c.Header.Set("User-Agent", "curl/8.0")

	// header values must not bleed into each other
	d := httptest.NewRequest(http.MethodGet, "/", nil)
	d.Header.Set("User-Agent", "Mozilla/5.0de")

	e := httptest.NewRequest(http.MethodGet, "/", nil)
	e.Header.Set("User-Agent", "Mozilla/5.0")
	e.Header.Set("Accept-Language", "de")

	fa, _ := FromHTTPRequest(a)
	fb, _ := FromHTTPRequest(b)
	fc, _ := FromHTTPRequest(c)
	fd, _ := FromHTTPRequest(d)
	fe, _ := FromHTTPRequest(e)

	assert.Equal(t, fa, fb)
	assert.NotEqual(t, fa, fc)
	assert.NotEqual(t, fd, fe)
}

func TestMiddleware(t *testing.T) {
	var got string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		fp, err := FromContext(r.Context())
		require.NoError(t, err)
		got = fp
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	want, _ := FromHTTPRequest(req)
	assert.Equal(t, want, got)

	_, err := FromContext(t.Context())
	assert.ErrorIs(t, err, ErrNoFingerprint)
}
