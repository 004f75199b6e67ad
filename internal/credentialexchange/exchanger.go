package credentialexchange

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dnitsch/okta-cli-auth/internal/fanout"
	"github.com/dnitsch/okta-cli-auth/internal/httpclient"
	"github.com/dnitsch/okta-cli-auth/internal/saml"
)

// assumeDurationSeconds is fixed for the direct exchange path.
const assumeDurationSeconds = 3600

// SamlExchanger fetches the assertion from the IdP application with a session
// token and assumes every role it names, or just the requested one.
type SamlExchanger struct {
	client *httpclient.Client
	svc    AuthSamlApi
}

func NewSamlExchanger(client *httpclient.Client, svc AuthSamlApi) *SamlExchanger {
	return &SamlExchanger{client: client, svc: svc}
}

// Run returns one credential per selected role, in the order the assertion
// lists them. A failed assumption fails the whole call, partial results are
// never returned.
func (e *SamlExchanger) Run(ctx context.Context, appURL, sessionToken, roleArn string) ([]AWSCredentials, error) {
	res, err := e.client.Get(ctx, appURL, url.Values{"sessionToken": {sessionToken}}, nil, httpclient.AcceptHTML)
	if err != nil {
		return nil, err
	}

	assertion, err := saml.Parse(string(res.Body))
	if err != nil {
		return nil, err
	}

	pairs, err := assertion.Roles()
	if err != nil {
		return nil, err
	}

	if roleArn != "" {
		selected, err := findRole(pairs, roleArn)
		if err != nil {
			return nil, err
		}
		pairs = []saml.RolePair{selected}
	}

	creds, err := fanout.Map(ctx, pairs, func(ctx context.Context, pair saml.RolePair) (AWSCredentials, error) {
		cred, err := LoginStsSaml(ctx, assertion.Raw(), AWSRole{
			RoleARN:      pair.RoleArn,
			PrincipalARN: pair.PrincipalArn,
			Duration:     assumeDurationSeconds,
		}, e.svc)
		if err != nil {
			return AWSCredentials{}, err
		}
		return *cred, nil
	})
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func findRole(pairs []saml.RolePair, roleArn string) (saml.RolePair, error) {
	for _, pair := range pairs {
		if pair.RoleArn == roleArn {
			return pair, nil
		}
	}
	return saml.RolePair{}, fmt.Errorf("%q, %w", roleArn, ErrRoleNotFound)
}
