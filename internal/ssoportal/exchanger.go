package ssoportal

import (
	"context"
	"fmt"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/httpclient"
)

// Exchanger is the portal counterpart of the direct STS exchange: session
// token in, one credential per assigned (or requested) role out.
type Exchanger struct {
	login     *Login
	client    *Client
	portalURL string
}

func NewExchanger(httpClient *httpclient.Client, region string) *Exchanger {
	portalURL := fmt.Sprintf("https://portal.sso.%s.amazonaws.com", region)
	return &Exchanger{
		login:     NewLogin(httpClient),
		client:    NewClient(NewPortal(httpClient, portalURL)),
		portalURL: portalURL,
	}
}

// Run signs in to the portal and generates credentials for roleArn, or for
// every assigned role when roleArn is empty.
func (e *Exchanger) Run(ctx context.Context, appURL, sessionToken, roleArn string) ([]credentialexchange.AWSCredentials, error) {
	token, err := e.login.Run(ctx, appURL, sessionToken, e.portalURL)
	if err != nil {
		return nil, err
	}

	var roles []credentialexchange.Role
	if roleArn != "" {
		role, err := credentialexchange.RoleFromArn(roleArn)
		if err != nil {
			return nil, err
		}
		roles = []credentialexchange.Role{role}
	} else {
		roles, err = e.client.ListRoleArns(ctx, token)
		if err != nil {
			return nil, err
		}
	}

	return e.client.ListCredentials(ctx, token, roles)
}
