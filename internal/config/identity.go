package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/openkcm/common-sdk/pkg/commoncfg"

	"github.com/autoretech/backoffice/internal/identity"
)

// Settings resolves the identity service URL and API key. An empty source
// reference stands for a missing value, not for an error.
func (i Identity) Settings() (identity.Settings, error) {
	u, err := loadOptional(i.URL)
	if err != nil {
		return identity.Settings{}, fmt.Errorf("loading identity url: %w", err)
	}

	key, err := loadOptional(i.APIKey)
	if err != nil {
		return identity.Settings{}, fmt.Errorf("loading identity api key: %w", err)
	}

	return identity.NewSettings(u, key), nil
}

// CallbackURL is where confirmation e-mail links send the browser. It is
// empty when no public URL is configured.
func (i Identity) CallbackURL() (string, error) {
	if i.PublicURL == "" {
		return "", nil
	}

	base, err := url.Parse(strings.TrimSuffix(i.PublicURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing public url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("public url %q is not absolute", i.PublicURL)
	}

	return base.JoinPath("auth", "callback").String(), nil
}

func loadOptional(ref commoncfg.SourceRef) (string, error) {
	if ref.Source == "" {
		return "", nil
	}

	v, err := commoncfg.LoadValueFromSourceRef(ref)
	if err != nil {
		return "", err
	}

	return string(v), nil
}
