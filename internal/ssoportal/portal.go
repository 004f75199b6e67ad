package ssoportal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/httpclient"
)

// https://docs.aws.amazon.com/singlesignon/latest/PortalAPIReference/ssoportal-api.pdf
const (
	bearerTokenHeader = "x-amz-sso_bearer_token"
	maxPageSize       = "100"
)

var ErrPortalResponse = errors.New("portal response malformed")

// Account is one cloud account the signed-in user is assigned to.
type Account struct {
	AccountID    string `json:"accountId"`
	AccountName  string `json:"accountName"`
	EmailAddress string `json:"emailAddress"`
}

// PortalApi is the subset of the portal REST surface the exchange needs.
type PortalApi interface {
	ListAccounts(ctx context.Context, token string) ([]Account, error)
	ListRoles(ctx context.Context, token, accountID string) ([]credentialexchange.Role, error)
	GenerateCredentials(ctx context.Context, token string, role credentialexchange.Role) (credentialexchange.AWSCredentials, error)
}

type Portal struct {
	client  *httpclient.Client
	baseURL string
}

func NewPortal(client *httpclient.Client, baseURL string) *Portal {
	return &Portal{client: client, baseURL: baseURL}
}

type accountPage struct {
	NextToken   *string   `json:"nextToken"`
	AccountList []Account `json:"accountList"`
}

type rolePage struct {
	NextToken *string     `json:"nextToken"`
	RoleList  []roleEntry `json:"roleList"`
}

type roleEntry struct {
	AccountID string `json:"accountId"`
	RoleName  string `json:"roleName"`
}

type credentialsResponse struct {
	RoleCredentials roleCredentials `json:"roleCredentials"`
}

type roleCredentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      int64  `json:"expiration"`
}

func (p *Portal) ListAccounts(ctx context.Context, token string) ([]Account, error) {
	return listPages(ctx, p.client, p.baseURL+"/assignment/accounts", token, nil,
		func(body []byte) ([]Account, *string, error) {
			page := &accountPage{}
			if err := json.Unmarshal(body, page); err != nil {
				return nil, nil, err
			}
			return page.AccountList, page.NextToken, nil
		})
}

func (p *Portal) ListRoles(ctx context.Context, token, accountID string) ([]credentialexchange.Role, error) {
	return listPages(ctx, p.client, p.baseURL+"/assignment/roles", token, url.Values{"account_id": {accountID}},
		func(body []byte) ([]credentialexchange.Role, *string, error) {
			page := &rolePage{}
			if err := json.Unmarshal(body, page); err != nil {
				return nil, nil, err
			}
			roles := make([]credentialexchange.Role, 0, len(page.RoleList))
			for _, r := range page.RoleList {
				roles = append(roles, credentialexchange.Role{AccountID: r.AccountID, RoleName: r.RoleName})
			}
			return roles, page.NextToken, nil
		})
}

// GenerateCredentials trades the bearer token for short lived credentials on a
// single role. The portal reports expiry as epoch milliseconds.
func (p *Portal) GenerateCredentials(ctx context.Context, token string, role credentialexchange.Role) (credentialexchange.AWSCredentials, error) {
	params := url.Values{
		"account_id": {role.AccountID},
		"role_name":  {role.RoleName},
	}
	res, err := p.client.GetWithRetry(ctx, p.baseURL+"/federation/credentials", params,
		map[string]string{bearerTokenHeader: token}, httpclient.AcceptJSON)
	if err != nil {
		return credentialexchange.AWSCredentials{}, err
	}

	parsed := &credentialsResponse{}
	if err := json.Unmarshal(res.Body, parsed); err != nil {
		return credentialexchange.AWSCredentials{}, fmt.Errorf("%s, %w", err, ErrPortalResponse)
	}

	return credentialexchange.AWSCredentials{
		AWSAccessKey:    parsed.RoleCredentials.AccessKeyID,
		AWSSecretKey:    parsed.RoleCredentials.SecretAccessKey,
		AWSSessionToken: parsed.RoleCredentials.SessionToken,
		RoleARN:         role.Arn(),
		Expires:         time.UnixMilli(parsed.RoleCredentials.Expiration).UTC(),
	}, nil
}

// listPages walks a cursor paginated portal listing until the server stops
// returning a next token.
func listPages[T any](ctx context.Context, client *httpclient.Client, uri, token string, extra url.Values, parse func([]byte) ([]T, *string, error)) ([]T, error) {
	out := []T{}
	var next *string
	for {
		params := url.Values{"max_result": {maxPageSize}}
		for k, vals := range extra {
			params[k] = vals
		}
		if next != nil {
			params.Set("next_token", *next)
		}

		res, err := client.GetWithRetry(ctx, uri, params,
			map[string]string{bearerTokenHeader: token}, httpclient.AcceptJSON)
		if err != nil {
			return nil, err
		}

		items, nextToken, err := parse(res.Body)
		if err != nil {
			return nil, fmt.Errorf("%s, %w", err, ErrPortalResponse)
		}
		out = append(out, items...)

		if nextToken == nil {
			return out, nil
		}
		next = nextToken
	}
}
