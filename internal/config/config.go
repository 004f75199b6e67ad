// Package config holds per-host sign-in defaults so the credentials commands
// can be run with no flags once a host is configured.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrHostNotFound  = errors.New("host not found in config")
	ErrAppUrlInvalid = errors.New("app url invalid")
)

// AwsHost is the stored default for one IdP application with a direct SAML
// trust to AWS.
type AwsHost struct {
	AppUrl      string `mapstructure:"app-url"`
	Username    string `mapstructure:"username"`
	Mfa         string `mapstructure:"mfa"`
	MfaProvider string `mapstructure:"mfa-provider"`
}

// AwsSsoHost is the stored default for an application fronting IAM Identity
// Center, which additionally needs the portal region.
type AwsSsoHost struct {
	AwsHost `mapstructure:",squash"`
	Region  string `mapstructure:"region"`
}

type Settings struct {
	KeyringEnabled bool         `mapstructure:"keyring-enabled"`
	AwsHosts       []AwsHost    `mapstructure:"aws-hosts"`
	AwsSsoHosts    []AwsSsoHost `mapstructure:"aws-sso-hosts"`
}

func Load(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unable to parse settings: %s, %w", err, ErrAppUrlInvalid)
	}
	return settings, nil
}

// FindAwsHost returns the host matching appUrl, or the first configured host
// when appUrl is empty.
func (s *Settings) FindAwsHost(appUrl string) (*AwsHost, error) {
	if appUrl == "" {
		if len(s.AwsHosts) == 0 {
			return nil, ErrHostNotFound
		}
		return &s.AwsHosts[0], nil
	}
	for i := range s.AwsHosts {
		if s.AwsHosts[i].AppUrl == appUrl {
			return &s.AwsHosts[i], nil
		}
	}
	return nil, fmt.Errorf("%q, %w", appUrl, ErrHostNotFound)
}

func (s *Settings) FindAwsSsoHost(appUrl string) (*AwsSsoHost, error) {
	if appUrl == "" {
		if len(s.AwsSsoHosts) == 0 {
			return nil, ErrHostNotFound
		}
		return &s.AwsSsoHosts[0], nil
	}
	for i := range s.AwsSsoHosts {
		if s.AwsSsoHosts[i].AppUrl == appUrl {
			return &s.AwsSsoHosts[i], nil
		}
	}
	return nil, fmt.Errorf("%q, %w", appUrl, ErrHostNotFound)
}

// AddAwsHost inserts host or overwrites the existing entry with the same app
// url.
func (s *Settings) AddAwsHost(host AwsHost) {
	for i := range s.AwsHosts {
		if s.AwsHosts[i].AppUrl == host.AppUrl {
			s.AwsHosts[i] = host
			return
		}
	}
	s.AwsHosts = append(s.AwsHosts, host)
}

func (s *Settings) AddAwsSsoHost(host AwsSsoHost) {
	for i := range s.AwsSsoHosts {
		if s.AwsSsoHosts[i].AppUrl == host.AppUrl {
			s.AwsSsoHosts[i] = host
			return
		}
	}
	s.AwsSsoHosts = append(s.AwsSsoHosts, host)
}

// Save writes the settings back through viper. Hosts are stored as plain maps
// so the file round trips through Load.
func (s *Settings) Save(v *viper.Viper) error {
	awsHosts := make([]map[string]any, 0, len(s.AwsHosts))
	for _, h := range s.AwsHosts {
		awsHosts = append(awsHosts, h.asMap())
	}
	ssoHosts := make([]map[string]any, 0, len(s.AwsSsoHosts))
	for _, h := range s.AwsSsoHosts {
		m := h.asMap()
		m["region"] = h.Region
		ssoHosts = append(ssoHosts, m)
	}

	v.Set("keyring-enabled", s.KeyringEnabled)
	v.Set("aws-hosts", awsHosts)
	v.Set("aws-sso-hosts", ssoHosts)

	if err := v.WriteConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v.SafeWriteConfig()
		}
		return err
	}
	return nil
}

func (h AwsHost) asMap() map[string]any {
	return map[string]any{
		"app-url":      h.AppUrl,
		"username":     h.Username,
		"mfa":          h.Mfa,
		"mfa-provider": h.MfaProvider,
	}
}

// NormalizeAppUrl strips the query and any trailing slash so lookups by app
// url are stable however the link was copied.
func NormalizeAppUrl(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%s, %w", err, ErrAppUrlInvalid)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q, %w", raw, ErrAppUrlInvalid)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}
