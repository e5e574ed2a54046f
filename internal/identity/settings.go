package identity

import "strings"

// Placeholder values shipped in sample configurations. A backend configured
// with either of them is treated as not configured.
const (
	PlaceholderURL    = "https://placeholder-url.supabase.co"
	PlaceholderAPIKey = "placeholder-key"
)

// Settings is the resolved identity backend configuration. It is computed once
// at startup and never changes afterwards.
type Settings struct {
	URL        string
	APIKey     string
	Configured bool
	// UsesPlaceholders is set when either value is a known placeholder.
	UsesPlaceholders bool
}

func NewSettings(url, apiKey string) Settings {
	url = strings.TrimSpace(url)
	apiKey = strings.TrimSpace(apiKey)

	placeholders := url == PlaceholderURL || apiKey == PlaceholderAPIKey

	return Settings{
		URL:              url,
		APIKey:           apiKey,
		Configured:       url != "" && apiKey != "" && !placeholders,
		UsesPlaceholders: placeholders,
	}
}
