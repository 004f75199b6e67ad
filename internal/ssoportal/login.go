// Package ssoportal exchanges an IdP session token for AWS credentials via
// the SSO portal, the path used when roles are assigned through IAM Identity
// Center instead of a direct SAML trust.
package ssoportal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dnitsch/okta-cli-auth/internal/httpclient"
	"github.com/dnitsch/okta-cli-auth/internal/saml"
)

var (
	ErrMissingAuthCode = errors.New("auth code not found in workflow redirect")
	ErrMissingOrgId    = errors.New("org id not found in workflow redirect")
	ErrTokenMalformed  = errors.New("sso token response malformed")
)

type tokenResponse struct {
	Token string `json:"token"`
}

type workflowResult struct {
	orgId    string
	authCode string
}

// Login drives the three phase portal sign-in: fetch the assertion from the
// IdP application, post it to the portal workflow, then trade the resulting
// auth code for a bearer token.
type Login struct {
	client *httpclient.Client
}

func NewLogin(client *httpclient.Client) *Login {
	return &Login{client: client}
}

// Run returns the portal bearer token for sessionToken.
func (l *Login) Run(ctx context.Context, appURL, sessionToken, portalURL string) (string, error) {
	assertion, err := l.trySaml(ctx, appURL, sessionToken)
	if err != nil {
		return "", err
	}

	workflow, err := l.workflowStart(ctx, assertion)
	if err != nil {
		return "", err
	}

	return l.token(ctx, portalURL, workflow)
}

func (l *Login) trySaml(ctx context.Context, appURL, sessionToken string) (*saml.Assertion, error) {
	res, err := l.client.Get(ctx, appURL, url.Values{"sessionToken": {sessionToken}}, nil, httpclient.AcceptHTML)
	if err != nil {
		return nil, err
	}
	return saml.Parse(string(res.Body))
}

// workflowStart posts the assertion to its own Destination with an empty
// RelayState. The portal answers with a chain of redirects whose final URL
// carries the auth code, and whose host's first label is the org id.
func (l *Login) workflowStart(ctx context.Context, assertion *saml.Assertion) (*workflowResult, error) {
	destination, err := assertion.Destination()
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"SAMLResponse": {assertion.Raw()},
		"RelayState":   {""},
	}
	res, err := l.client.PostForm(ctx, destination, form, httpclient.AcceptHTML)
	if err != nil {
		return nil, err
	}

	authCode := res.URL.Query().Get("workflowResultHandle")
	if authCode == "" {
		return nil, fmt.Errorf("url %s, %w", res.URL.Redacted(), ErrMissingAuthCode)
	}

	orgId, _, _ := strings.Cut(res.URL.Hostname(), ".")
	if orgId == "" {
		return nil, fmt.Errorf("url %s, %w", res.URL.Redacted(), ErrMissingOrgId)
	}

	return &workflowResult{orgId: orgId, authCode: authCode}, nil
}

func (l *Login) token(ctx context.Context, portalURL string, workflow *workflowResult) (string, error) {
	form := url.Values{
		"authCode": {workflow.authCode},
		"orgId":    {workflow.orgId},
	}
	res, err := l.client.PostForm(ctx, portalURL+"/auth/sso-token", form, httpclient.AcceptJSON)
	if err != nil {
		return "", err
	}

	token := &tokenResponse{}
	if err := json.Unmarshal(res.Body, token); err != nil {
		return "", fmt.Errorf("%s, %w", err, ErrTokenMalformed)
	}
	if token.Token == "" {
		return "", ErrTokenMalformed
	}
	return token.Token, nil
}
