package ssoportal

import (
	"context"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/fanout"
)

// Client composes the portal listing calls into the two shapes the exchange
// needs: every assumable role, and a credential per role. Per-account and
// per-role requests run concurrently but results keep the portal's account
// ordering.
type Client struct {
	api PortalApi
}

func NewClient(api PortalApi) *Client {
	return &Client{api: api}
}

// ListRoleArns returns every role across every assigned account, grouped in
// account order.
func (c *Client) ListRoleArns(ctx context.Context, token string) ([]credentialexchange.Role, error) {
	accounts, err := c.api.ListAccounts(ctx, token)
	if err != nil {
		return nil, err
	}

	perAccount, err := fanout.Map(ctx, accounts, func(ctx context.Context, account Account) ([]credentialexchange.Role, error) {
		return c.api.ListRoles(ctx, token, account.AccountID)
	})
	if err != nil {
		return nil, err
	}

	roles := []credentialexchange.Role{}
	for _, accountRoles := range perAccount {
		roles = append(roles, accountRoles...)
	}
	return roles, nil
}

// ListCredentials generates one credential per role, in role order.
func (c *Client) ListCredentials(ctx context.Context, token string, roles []credentialexchange.Role) ([]credentialexchange.AWSCredentials, error) {
	return fanout.Map(ctx, roles, func(ctx context.Context, role credentialexchange.Role) (credentialexchange.AWSCredentials, error) {
		return c.api.GenerateCredentials(ctx, token, role)
	})
}
