package config

import "net/http"

var sameSiteModes = map[CookieSameSite]http.SameSite{
	CookieSameSiteNone:   http.SameSiteNoneMode,
	CookieSameSiteLax:    http.SameSiteLaxMode,
	CookieSameSiteStrict: http.SameSiteStrictMode,
}

// ToCookie builds the cookie described by the template carrying value. An
// unknown SameSite value leaves the browser default.
func (ct *CookieTemplate) ToCookie(value string) *http.Cookie {
	mode, ok := sameSiteModes[ct.SameSite]
	if !ok {
		mode = http.SameSiteDefaultMode
	}

	return &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   ct.Secure,
		HttpOnly: ct.HTTPOnly,
		SameSite: mode,
	}
}

// Expired returns a cookie that makes the browser drop the template's cookie.
func (ct *CookieTemplate) Expired() *http.Cookie {
	c := ct.ToCookie("")
	c.MaxAge = -1

	return c
}
