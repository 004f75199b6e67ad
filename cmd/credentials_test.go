package cmd

import (
	"errors"
	"testing"

	"github.com/dnitsch/okta-cli-auth/internal/config"
	"github.com/dnitsch/okta-cli-auth/internal/okta"
)

func Test_buildConf_normalizes_mfa(t *testing.T) {
	ttests := map[string]struct {
		mfa  string
		want string
	}{
		"lower case":      {mfa: "totp", want: "totp"},
		"upper case":      {mfa: "TOTP", want: "totp"},
		"okta push alias": {mfa: "OktaPush", want: "push"},
		"unset":           {mfa: "", want: ""},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			host := config.AwsHost{AppUrl: "https://idp.example.com/app", Username: "jane", Mfa: tt.mfa}
			conf, err := buildConf(host, "")
			if err != nil {
				t.Fatalf("got %v, wanted nil", err)
			}
			if conf.Mfa != tt.want {
				t.Errorf("got %s, wanted %s", conf.Mfa, tt.want)
			}
			// the stored value feeds factor selection verbatim
			if _, err := okta.MfaFromString(conf.Mfa); err != nil {
				t.Errorf("got %v, wanted a selectable value", err)
			}
		})
	}
}

func Test_buildConf_rejects_unknown_mfa(t *testing.T) {
	host := config.AwsHost{AppUrl: "https://idp.example.com/app", Username: "jane", Mfa: "sms"}
	if _, err := buildConf(host, ""); !errors.Is(err, okta.ErrInvalidMfaSelection) {
		t.Fatalf("got %v, wanted ErrInvalidMfaSelection", err)
	}
}
