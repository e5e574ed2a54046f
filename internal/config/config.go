// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP      HTTPServer `yaml:"http"`
	Identity  Identity   `yaml:"identity"`
	Workspace Workspace  `yaml:"workspace"`

	Database Database `yaml:"database"`
	ValKey   ValKey   `yaml:"valkey"`
	Journal  Journal  `yaml:"journal"`

	Housekeeper Housekeeper `yaml:"housekeeper"`
}

type HTTPServer struct {
	Address           string        `yaml:"address" default:":8080"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" default:"5s"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" default:"10s"`
}

// Identity configures the GoTrue identity service. Missing or placeholder
// values leave authentication unconfigured; the server still starts.
type Identity struct {
	URL    commoncfg.SourceRef `yaml:"url"`
	APIKey commoncfg.SourceRef `yaml:"apiKey"`
	// PublicURL is the externally visible base URL of the back-office, used
	// for the link in sign-up confirmation e-mails. Empty means the origin
	// of the request that created the instance.
	PublicURL string `yaml:"publicURL"`
	// RequestTimeout bounds every call to the identity service. Zero means no bound.
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"0s"`
}

type SessionStorage string

const (
	SessionStorageMemory SessionStorage = "memory"
	SessionStorageValKey SessionStorage = "valkey"
)

// Workspace configures the per-browser instances.
type Workspace struct {
	IdleTimeout     time.Duration  `yaml:"idleTimeout" default:"30m"`
	CleanupInterval time.Duration  `yaml:"cleanupInterval" default:"5m"`
	SettleTimeout   time.Duration  `yaml:"settleTimeout" default:"2s"`
	CallbackDelay   time.Duration  `yaml:"callbackDelay" default:"3s"`
	SessionStorage  SessionStorage `yaml:"sessionStorage" default:"memory"`
	// SessionTTL bounds how long a stored session outlives its instance.
	SessionTTL time.Duration `yaml:"sessionTTL" default:"168h"`

	SignInRate  float64 `yaml:"signInRate" default:"0.2"`
	SignInBurst int     `yaml:"signInBurst" default:"5"`

	Cookie     CookieTemplate      `yaml:"cookie"`
	CSRFSecret commoncfg.SourceRef `yaml:"csrfSecret"`
	CSRFMaxAge time.Duration       `yaml:"csrfMaxAge" default:"1h"`
}

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name" default:"backoffice_instance"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure"`
	SameSite CookieSameSite `yaml:"sameSite" default:"Lax"`
	HTTPOnly bool           `yaml:"httpOnly" default:"true"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port" default:"5432"`
	SSLMode  string              `yaml:"sslMode"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
	Prefix   string              `yaml:"prefix" default:"backoffice"`

	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// Journal configures the Postgres journal of auth events.
type Journal struct {
	Enabled bool `yaml:"enabled"`
	// Recent is the number of entries shown on the settings page.
	Recent int `yaml:"recent" default:"20"`
	// Retention is how long the housekeeper keeps entries.
	Retention time.Duration `yaml:"retention" default:"720h"`
	Buffer    int           `yaml:"buffer" default:"256"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"1h"`
}
