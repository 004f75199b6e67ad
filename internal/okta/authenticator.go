// Package okta drives the IdP authn transaction state machine: primary
// authentication, MFA factor selection and challenge, and polling, ending in
// a session token the AWS exchange paths consume.
//
// See https://developer.okta.com/docs/reference/api/authn/#transaction-state
// for the protocol this follows.
package okta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dnitsch/okta-cli-auth/internal/httpclient"
	"github.com/dnitsch/okta-cli-auth/internal/logger"
)

var (
	ErrIdpRejected            = errors.New("idp rejected the request")
	ErrProtocolViolation      = errors.New("required field missing from idp response")
	ErrUnexpectedStatus       = errors.New("unexpected http status from idp")
	ErrUnimplementedState     = errors.New("unimplemented transaction state")
	ErrUnimplementedResult    = errors.New("unimplemented factor result")
	ErrFactorNotFound         = errors.New("mfa factor not found")
	ErrVerificationURLMissing = errors.New("factor verification url missing")
	ErrInsecureOrigin         = errors.New("mfa origin must be https")
	ErrChallengeRejected      = errors.New("mfa challenge was rejected")
	ErrChallengeTimeout       = errors.New("mfa challenge timed out")
	ErrInvalidMfaSelection    = errors.New("invalid mfa selection")
)

// MfaSelection is an operator-requested factor kind.
type MfaSelection string

const (
	MfaUnset    MfaSelection = ""
	MfaWebAuthn MfaSelection = "webauthn"
	MfaTotp     MfaSelection = "totp"
	MfaPush     MfaSelection = "push"
)

// MfaFromString normalises an operator-supplied MFA selection.
func MfaFromString(s string) (MfaSelection, error) {
	switch strings.ToLower(s) {
	case "":
		return MfaUnset, nil
	case "webauthn":
		return MfaWebAuthn, nil
	case "totp":
		return MfaTotp, nil
	case "push", "oktapush":
		return MfaPush, nil
	}
	return MfaUnset, fmt.Errorf("%q, %w", s, ErrInvalidMfaSelection)
}

// SignedAssertion is what the MFA signer produces over a challenge.
type SignedAssertion struct {
	ClientData        string
	SignatureData     string
	AuthenticatorData string
}

// Signer satisfies a hardware-bound MFA challenge: sign the challenge for the
// given origin host with one of the candidate credential ids.
type Signer interface {
	Sign(challenge, host string, credentialIDs []string) (*SignedAssertion, error)
}

// Prompter covers the operator interaction the state machine needs. The
// pipeline itself does no terminal I/O so tests can script it fully.
type Prompter interface {
	SelectFactor(factors []Factor) (Factor, error)
	TotpCode() (string, error)
}

// Authenticator walks the authn state machine to a session token.
type Authenticator struct {
	client       *httpclient.Client
	prompt       Prompter
	signer       Signer
	pollInterval time.Duration
}

func NewAuthenticator(client *httpclient.Client, prompt Prompter, signer Signer) *Authenticator {
	return &Authenticator{
		client:       client,
		prompt:       prompt,
		signer:       signer,
		pollInterval: time.Second,
	}
}

// step is the action the state machine takes next, derived purely from the
// last response.
type step int

const (
	stepMfaRequired step = iota
	stepMfaChallenge
	stepMfaWaiting
	stepSuccess
)

// nextStep is the pure transition function: response in, action out. All the
// I/O lives in the per-step methods so transitions stay testable on their own.
func nextStep(tx *Transaction) (step, error) {
	switch tx.Status {
	case StateMfaRequired:
		return stepMfaRequired, nil
	case StateMfaChallenge:
		switch tx.FactorResult {
		case FactorResultChallenge:
			return stepMfaChallenge, nil
		case FactorResultWaiting:
			return stepMfaWaiting, nil
		case FactorResultRejected:
			return 0, ErrChallengeRejected
		case FactorResultTimeout:
			return 0, ErrChallengeTimeout
		case "":
			return 0, fmt.Errorf("factorResult, %w", ErrProtocolViolation)
		default:
			return 0, fmt.Errorf("%q, %w", tx.FactorResult, ErrUnimplementedResult)
		}
	case StateSuccess:
		return stepSuccess, nil
	}
	return 0, fmt.Errorf("%q, %w", tx.Status, ErrUnimplementedState)
}

// Run authenticates username/password against the app's IdP and resolves MFA
// until the transaction succeeds, returning the session token.
func (a *Authenticator) Run(ctx context.Context, appURL, username, password string, mfa MfaSelection, mfaProvider string) (string, error) {
	tx, err := a.authorize(ctx, appURL, username, password)
	if err != nil {
		return "", err
	}

	for {
		next, err := nextStep(tx)
		if err != nil {
			return "", err
		}

		switch next {
		case stepMfaRequired:
			tx, err = a.mfaRequired(ctx, tx, mfa, mfaProvider)
		case stepMfaChallenge:
			tx, err = a.mfaChallenge(ctx, tx, appURL)
		case stepMfaWaiting:
			tx, err = a.mfaWaiting(ctx, tx)
		case stepSuccess:
			if tx.SessionToken == "" {
				return "", fmt.Errorf("sessionToken, %w", ErrProtocolViolation)
			}
			return tx.SessionToken, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// authorize runs primary authentication against {appURL}/api/v1/authn.
func (a *Authenticator) authorize(ctx context.Context, appURL, username, password string) (*Transaction, error) {
	u, err := url.Parse(appURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/api/v1/authn"
	u.RawQuery = ""

	tx, err := a.postTransaction(ctx, u.String(), map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	if tx.StateToken == "" && tx.SessionToken == "" {
		return nil, fmt.Errorf("stateToken, %w", ErrProtocolViolation)
	}
	return tx, nil
}

// mfaRequired picks a factor and posts the state token (plus a TOTP pass code
// when the factor wants one) to its verification url.
func (a *Authenticator) mfaRequired(ctx context.Context, tx *Transaction, mfa MfaSelection, mfaProvider string) (*Transaction, error) {
	if tx.StateToken == "" {
		return nil, fmt.Errorf("stateToken, %w", ErrProtocolViolation)
	}
	factors := tx.Factors()
	if len(factors) == 0 {
		return nil, fmt.Errorf("factors, %w", ErrProtocolViolation)
	}

	factor, err := a.selectFactor(factors, mfa, mfaProvider)
	if err != nil {
		return nil, err
	}

	verifyURL, ok := factor.VerificationURL()
	if !ok {
		return nil, fmt.Errorf("%s, %w", factor.HumanName(), ErrVerificationURLMissing)
	}

	payload := map[string]string{"stateToken": tx.StateToken}
	if factor.Kind == FactorTotp {
		code, err := a.prompt.TotpCode()
		if err != nil {
			return nil, err
		}
		payload["passCode"] = code
	}

	return a.postTransaction(ctx, verifyURL, payload)
}

// mfaChallenge satisfies a signing challenge with the MFA signer and posts
// the signed assertion to the transaction's next link.
func (a *Authenticator) mfaChallenge(ctx context.Context, tx *Transaction, appURL string) (*Transaction, error) {
	if tx.StateToken == "" {
		return nil, fmt.Errorf("stateToken, %w", ErrProtocolViolation)
	}
	challengeStr, ok := tx.Challenge()
	if !ok {
		return nil, fmt.Errorf("challenge, %w", ErrProtocolViolation)
	}
	nextURL, ok := tx.Next()
	if !ok {
		return nil, fmt.Errorf("next link, %w", ErrProtocolViolation)
	}

	credentialIDs := []string{}
	for _, factor := range tx.Factors() {
		if id, ok := factor.CredentialID(); ok {
			credentialIDs = append(credentialIDs, id)
		}
	}

	origin, err := url.Parse(appURL)
	if err != nil {
		return nil, err
	}
	if origin.Scheme != "https" {
		return nil, fmt.Errorf("%s, %w", appURL, ErrInsecureOrigin)
	}

	signed, err := a.signer.Sign(challengeStr, origin.Hostname(), credentialIDs)
	if err != nil {
		return nil, err
	}

	return a.postTransaction(ctx, nextURL, map[string]string{
		"stateToken":        tx.StateToken,
		"clientData":        signed.ClientData,
		"signatureData":     signed.SignatureData,
		"authenticatorData": signed.AuthenticatorData,
	})
}

// mfaWaiting polls the next link after a fixed pause. Never retried beyond
// the protocol's own loop - a lost poll is a lost poll.
func (a *Authenticator) mfaWaiting(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if tx.StateToken == "" {
		return nil, fmt.Errorf("stateToken, %w", ErrProtocolViolation)
	}
	nextURL, ok := tx.Next()
	if !ok {
		return nil, fmt.Errorf("next link, %w", ErrProtocolViolation)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.pollInterval):
	}

	return a.postTransaction(ctx, nextURL, map[string]string{"stateToken": tx.StateToken})
}

// selectFactor narrows the offered factors to one. WebAuthn entries without a
// profile are the provider's generic placeholder, never a concrete credential
// an operator could mean, so they are dropped up front.
func (a *Authenticator) selectFactor(factors []Factor, mfa MfaSelection, mfaProvider string) (Factor, error) {
	selectable := []Factor{}
	for _, f := range factors {
		if f.Kind == FactorWebAuthn && f.Profile == nil {
			continue
		}
		selectable = append(selectable, f)
	}

	if mfa == MfaUnset {
		if len(selectable) == 0 {
			return Factor{}, ErrFactorNotFound
		}
		return a.prompt.SelectFactor(selectable)
	}

	var want FactorKind
	switch mfa {
	case MfaWebAuthn:
		want = FactorWebAuthn
	case MfaTotp:
		want = FactorTotp
	case MfaPush:
		want = FactorPush
	default:
		return Factor{}, fmt.Errorf("%q, %w", mfa, ErrInvalidMfaSelection)
	}

	for _, f := range selectable {
		if f.Kind != want {
			continue
		}
		if mfa == MfaTotp && mfaProvider != "" {
			provider, ok := f.ProviderName()
			if !ok || !strings.EqualFold(provider, mfaProvider) {
				continue
			}
		}
		return f, nil
	}
	return Factor{}, ErrFactorNotFound
}

// postTransaction posts JSON to the IdP and decodes the next transaction.
// 401/429 carry a structured error body with a human-readable summary.
func (a *Authenticator) postTransaction(ctx context.Context, uri string, payload map[string]string) (*Transaction, error) {
	res, err := a.client.PostJSON(ctx, uri, payload)
	if err != nil {
		return nil, err
	}

	switch res.StatusCode {
	case http.StatusOK:
		return parseTransaction(res.Body)
	case http.StatusUnauthorized, http.StatusTooManyRequests:
		apiErr := apiError{}
		if err := json.Unmarshal(res.Body, &apiErr); err != nil {
			return nil, fmt.Errorf("status %d, %w", res.StatusCode, ErrIdpRejected)
		}
		return nil, fmt.Errorf("%s, %w", apiErr.summary(), ErrIdpRejected)
	}
	logger.Traceln("authn POST %s returned status %d", uri, res.StatusCode)
	return nil, fmt.Errorf("status %d, %w", res.StatusCode, ErrUnexpectedStatus)
}
