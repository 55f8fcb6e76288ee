package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Authorization schemes a partner can be configured with.
const (
	SchemeBearer = "bearer"
	SchemeBasic  = "basic"
)

// Partner describes one downstream partner: where its API lives and
// how to authenticate against it. Each partner gets its own client and
// its own credential state; partners never share either.
type Partner struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`

	// Scheme selects the authentication variant: "bearer" (exchanged
	// short-lived token, the default) or "basic" (static header).
	Scheme string `yaml:"scheme"`

	// AuthURL is the token endpoint for bearer partners.
	AuthURL string `yaml:"auth_url"`

	// Exchange credentials for bearer partners; Username/Password
	// double as the static pair for basic partners.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`

	// Mock short-circuits the partner entirely: canned in-process
	// responses, no network, no credentials.
	Mock bool `yaml:"mock"`
}

type partnersFile struct {
	Partners []Partner `yaml:"partners"`
}

// LoadPartners reads and validates the partners definition file.
func LoadPartners(path string) ([]Partner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading partners file: %w", err)
	}

	var pf partnersFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing partners file: %w", err)
	}

	if len(pf.Partners) == 0 {
		return nil, fmt.Errorf("partners file %s defines no partners", path)
	}

	seen := make(map[string]struct{})

	for i := range pf.Partners {
		p := &pf.Partners[i]

		if p.Scheme == "" {
			p.Scheme = SchemeBearer
		}

		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("partner %d (%q): %w", i+1, p.Name, err)
		}

		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("duplicate partner name %q", p.Name)
		}

		seen[p.Name] = struct{}{}
	}

	return pf.Partners, nil
}

func (p *Partner) validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}

	if err := checkURL(p.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}

	if p.Mock {
		return nil // mock partners need no credentials
	}

	switch p.Scheme {
	case SchemeBearer:
		if err := checkURL(p.AuthURL); err != nil {
			return fmt.Errorf("auth_url: %w", err)
		}

		if p.ClientID == "" || p.ClientSecret == "" {
			return fmt.Errorf("client_id and client_secret are required for bearer partners")
		}

		if p.Username == "" || p.Password == "" {
			return fmt.Errorf("username and password are required for bearer partners")
		}
	case SchemeBasic:
		if p.Username == "" || p.Password == "" {
			return fmt.Errorf("username and password are required for basic partners")
		}
	default:
		return fmt.Errorf("unknown scheme %q (want %q or %q)", p.Scheme, SchemeBearer, SchemeBasic)
	}

	return nil
}

func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must be http or https, got %q", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("URL has no host: %q", raw)
	}

	return nil
}
