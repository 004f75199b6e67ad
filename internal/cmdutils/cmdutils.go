// Package cmdutils glues the sign-in pipeline together for the commands:
// cached credential reuse, IdP authentication, the credential exchange, and
// storage of the result.
package cmdutils

import (
	"context"
	"errors"
	"fmt"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/logger"
	"github.com/dnitsch/okta-cli-auth/internal/okta"
)

var (
	ErrMissingArg       = errors.New("missing arg")
	ErrUnableToValidate = errors.New("unable to validate credential")
)

type SecretStorageImpl interface {
	AWSCredential() (*credentialexchange.AWSCredentials, error)
	SaveAWSCredential(cred *credentialexchange.AWSCredentials) error
	Clear() error
	ClearAll() error
}

// TokenIssuer authenticates a user against the IdP and hands back a session
// token.
type TokenIssuer interface {
	Run(ctx context.Context, appURL, username, password string, mfa okta.MfaSelection, mfaProvider string) (string, error)
}

// CredentialExchanger turns a session token into credentials, one per role.
// Both the direct STS path and the SSO portal path satisfy this.
type CredentialExchanger interface {
	Run(ctx context.Context, appURL, sessionToken, roleArn string) ([]credentialexchange.AWSCredentials, error)
}

// ValidateFunc reports whether a cached credential is still usable.
type ValidateFunc func(ctx context.Context, cred *credentialexchange.AWSCredentials) (bool, error)

// GetCreds runs the full pipeline. A still-valid cached credential short
// circuits the IdP round trips entirely; a fresh single-role credential is
// written back to the cache on the way out.
func GetCreds(ctx context.Context, issuer TokenIssuer, exchanger CredentialExchanger, secretStore SecretStorageImpl, validate ValidateFunc, conf credentialexchange.CredentialConfig, password string) error {
	if conf.BaseConfig.CfgSectionName == "" && conf.BaseConfig.StoreInProfile {
		return fmt.Errorf("cfg-section name must be provided if store-profile is enabled, %w", ErrMissingArg)
	}

	if conf.UseCache && conf.RoleArn != "" {
		storedCreds, err := secretStore.AWSCredential()
		if err != nil {
			return err
		}
		credsValid, err := validate(ctx, storedCreds)
		if err != nil {
			return fmt.Errorf("failed to validate: %s, %w", err, ErrUnableToValidate)
		}
		if credsValid {
			return credentialexchange.SetCredentials([]credentialexchange.AWSCredentials{*storedCreds}, conf)
		}
		logger.Traceln("cached credential for %s expired or invalid, re-authenticating", conf.RoleArn)
	}

	sessionToken, err := issuer.Run(ctx, conf.AppUrl, conf.BaseConfig.Username, password, okta.MfaSelection(conf.Mfa), conf.MfaProvider)
	if err != nil {
		return err
	}

	creds, err := exchanger.Run(ctx, conf.AppUrl, sessionToken, conf.RoleArn)
	if err != nil {
		return err
	}

	if conf.RoleArn != "" && len(creds) == 1 {
		if err := secretStore.SaveAWSCredential(&creds[0]); err != nil {
			return err
		}
	}

	return credentialexchange.SetCredentials(creds, conf)
}
