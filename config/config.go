// Package config holds the settings object carried through every terminal
// manager and transport call.
package config

import (
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

const (
	StandbyNever      = "never"
	StandbyWhenHidden = "when-hidden"

	DefaultBaseURL         = "http://localhost:8888"
	DefaultPollInterval    = 10 * time.Second
	DefaultMaxPollInterval = 300 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
)

// Environment variables read by FromEnv.
const (
	EnvURL       = "TERMINALS_URL"
	EnvWSURL     = "TERMINALS_WS_URL"
	EnvToken     = "TERMINALS_TOKEN"
	EnvAvailable = "TERMINALS_AVAILABLE"
)

// Duration is a time.Duration that unmarshals from strings such as "10s",
// "5m" or "1d".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return str2duration.String(time.Duration(d)), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// ParseDuration parses a duration string, also accepting day and week units.
func ParseDuration(val string) (time.Duration, error) {
	v, err := str2duration.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", val)
	}
	if v < 0 {
		return 0, errors.Newf("invalid duration %q: must not be negative", val)
	}
	return v, nil
}

// Settings describe how to reach the terminal server. They are passed
// opaquely through the manager to the transport on every call.
type Settings struct {
	// BaseURL is the HTTP root of the server, e.g. http://localhost:8888
	BaseURL string `yaml:"base_url"`
	// WSURL is the websocket root; derived from BaseURL when empty
	WSURL string `yaml:"ws_url,omitempty"`
	// Token is sent as "Authorization: token <Token>" when set
	Token string `yaml:"token,omitempty"`
	// TerminalsAvailable reports whether the server exposes terminals at all
	TerminalsAvailable bool `yaml:"terminals_available"`
	// Headers are added to every request
	Headers map[string]string `yaml:"headers,omitempty"`

	RequestTimeout  Duration `yaml:"request_timeout,omitempty"`
	PollInterval    Duration `yaml:"poll_interval,omitempty"`
	MaxPollInterval Duration `yaml:"max_poll_interval,omitempty"`
	// Standby is "never" or "when-hidden"
	Standby string `yaml:"standby,omitempty"`
	// ServiceUnavailable lists the status codes treated as the backing service being down
	ServiceUnavailable []int `yaml:"service_unavailable,omitempty"`
}

// Default returns settings for a local server with terminals enabled.
func Default() *Settings {
	return &Settings{
		BaseURL:            DefaultBaseURL,
		TerminalsAvailable: true,
		RequestTimeout:     Duration(DefaultRequestTimeout),
		PollInterval:       Duration(DefaultPollInterval),
		MaxPollInterval:    Duration(DefaultMaxPollInterval),
		Standby:            StandbyWhenHidden,
		ServiceUnavailable: []int{503},
	}
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.ServiceUnavailable = slices.Clone(s.ServiceUnavailable)
	if s.Headers != nil {
		c.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}

// WebsocketURL returns WSURL or, when unset, BaseURL with its scheme
// switched to ws/wss.
func (s *Settings) WebsocketURL() string {
	if s.WSURL != "" {
		return s.WSURL
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

// Validate checks the settings are usable.
func (s *Settings) Validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return errors.Wrapf(err, "invalid base_url %q", s.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("invalid base_url %q: scheme must be http or https", s.BaseURL)
	}
	if u.Host == "" {
		return errors.Newf("invalid base_url %q: missing host", s.BaseURL)
	}
	switch s.Standby {
	case "", StandbyNever, StandbyWhenHidden:
	default:
		return errors.Newf("invalid standby %q: must be %q or %q", s.Standby, StandbyNever, StandbyWhenHidden)
	}
	if s.MaxPollInterval > 0 && s.PollInterval > s.MaxPollInterval {
		return errors.Newf("poll_interval %s exceeds max_poll_interval %s",
			s.PollInterval.Duration(), s.MaxPollInterval.Duration())
	}
	for _, code := range s.ServiceUnavailable {
		if code < 100 || code > 599 {
			return errors.Newf("invalid service_unavailable status %d", code)
		}
	}
	return nil
}

// Load reads YAML settings from filename on top of Default. A missing file
// yields the defaults.
func Load(filename string) (*Settings, error) {
	s := Default()
	buf, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.Wrapf(err, "reading %s", filename)
	}
	if err := yaml.Unmarshal(buf, s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", filename)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validating %s", filename)
	}
	return s, nil
}

// FromEnv overlays the TERMINALS_* environment variables onto s.
func (s *Settings) FromEnv() error {
	if v := os.Getenv(EnvURL); v != "" {
		s.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvWSURL); v != "" {
		s.WSURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvToken); v != "" {
		s.Token = v
	}
	if v := os.Getenv(EnvAvailable); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvAvailable)
		}
		s.TerminalsAvailable = ok
	}
	return nil
}

// Mask replaces the second half of s with asterisks.
func Mask(s string) string {
	l := len(s)
	if l == 0 {
		return s
	}
	if l == 1 {
		return "*"
	}
	h := l / 2
	return s[0:h] + strings.Repeat("*", l-h)
}

// Redacted returns a copy with the token and header values masked, for display.
func (s *Settings) Redacted() *Settings {
	c := s.Clone()
	c.Token = Mask(c.Token)
	for k, v := range c.Headers {
		c.Headers[k] = Mask(v)
	}
	return c
}
