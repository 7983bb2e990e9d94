// Package config holds the run configuration: an optional YAML file,
// overridden field by field with CLI flags.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/1ureka/silk/internal/transport"
)

// Role represents the user's chosen role.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
	RoleSignal Role = "signal"
)

// DefaultTickRate is the tick frequency in Hz when none is configured.
const DefaultTickRate = 30

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Signaling locates the signaling server. Local means "this machine" and
// ignores IP.
type Signaling struct {
	IP    string `yaml:"ip,omitempty"`
	Port  uint16 `yaml:"port"`
	Local bool   `yaml:"local,omitempty"`
}

// Auth is the client credential. Username alone asks for a guest session;
// AccessToken (with an optional Character) logs in as a registered user.
type Auth struct {
	Username    string `yaml:"username,omitempty"`
	AccessToken string `yaml:"access_token,omitempty"`
	Character   string `yaml:"character,omitempty"`
}

// Registered reports whether a carries an access token.
func (a Auth) Registered() bool { return a.AccessToken != "" }

// Config stores all parameters gathered from the config file and flags.
type Config struct {
	Role       Role              `yaml:"role"`
	Signaling  Signaling         `yaml:"signaling"`
	Listen     string            `yaml:"listen,omitempty"`    // Signal: bind address of the signaling server
	TickRate   int               `yaml:"tick_rate,omitempty"` // Host/Client: ticks per second
	Auth       Auth              `yaml:"auth,omitempty"`      // Client
	Tokens     map[string]string `yaml:"tokens,omitempty"`    // Host: access token -> account name
	Guests     *bool             `yaml:"guests,omitempty"`    // Host: accept guests when Tokens is set (default true)
	ICEServers []string          `yaml:"ice_servers,omitempty"`
	Debug      bool              `yaml:"debug,omitempty"`
}

// Default returns a Config with every optional field filled in.
func Default() Config {
	return Config{
		Listen:     ":3536",
		TickRate:   DefaultTickRate,
		ICEServers: append([]string(nil), transport.DefaultICEServers...),
	}
}

// Load reads the YAML file at path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Addr resolves the signaling location. It returns the zero address when
// none is configured.
func (c Config) Addr() (transport.ConnectionAddr, error) {
	s := c.Signaling
	switch {
	case s.Port == 0:
		return transport.ConnectionAddr{}, nil
	case s.Local:
		return transport.LocalAddr(s.Port), nil
	case s.IP == "":
		return transport.ConnectionAddr{}, nil
	}
	ip, err := netip.ParseAddr(s.IP)
	if err != nil {
		return transport.ConnectionAddr{}, fmt.Errorf("%w: signaling ip %q", ErrInvalid, s.IP)
	}
	return transport.RemoteAddr(ip, s.Port), nil
}

// AllowGuests reports whether a host should accept guest logins.
func (c Config) AllowGuests() bool {
	return c.Guests == nil || *c.Guests
}

// Validate checks that c is complete for its role.
func (c Config) Validate() error {
	switch c.Role {
	case RoleHost, RoleClient:
		addr, err := c.Addr()
		if err != nil {
			return err
		}
		if addr.IsZero() {
			return fmt.Errorf("%w: %s needs a signaling address", ErrInvalid, c.Role)
		}
		if c.TickRate < 1 || c.TickRate > 1000 {
			return fmt.Errorf("%w: tick_rate must be 1~1000, got %d", ErrInvalid, c.TickRate)
		}
		if c.Role == RoleClient {
			if c.Auth.Username == "" && !c.Auth.Registered() {
				return fmt.Errorf("%w: client needs a username or an access_token", ErrInvalid)
			}
			if c.Auth.Character != "" && !c.Auth.Registered() {
				return fmt.Errorf("%w: character requires an access_token", ErrInvalid)
			}
		}
		if c.Role == RoleHost && !c.AllowGuests() && len(c.Tokens) == 0 {
			return fmt.Errorf("%w: host accepts neither guests nor tokens", ErrInvalid)
		}
	case RoleSignal:
		if c.Listen == "" {
			return fmt.Errorf("%w: signal needs a listen address", ErrInvalid)
		}
	case "":
		return fmt.Errorf("%w: missing role", ErrInvalid)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalid, c.Role)
	}
	return nil
}
