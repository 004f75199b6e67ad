package okta

import (
	"encoding/json"
	"fmt"
)

// TransactionState is the status field of an authn response.
type TransactionState string

const (
	StateMfaRequired  TransactionState = "MFA_REQUIRED"
	StateMfaChallenge TransactionState = "MFA_CHALLENGE"
	StateSuccess      TransactionState = "SUCCESS"
)

// FactorResult qualifies a transaction in the MFA_CHALLENGE state.
type FactorResult string

const (
	FactorResultChallenge FactorResult = "CHALLENGE"
	FactorResultWaiting   FactorResult = "WAITING"
	FactorResultRejected  FactorResult = "REJECTED"
	FactorResultTimeout   FactorResult = "TIMEOUT"
)

// FactorKind is the closed set of MFA factor variants this client understands.
// Anything else decodes as FactorUnimplemented and is never selectable.
type FactorKind int

const (
	FactorUnimplemented FactorKind = iota
	FactorWebAuthn
	FactorTotp
	FactorPush
)

// apiError is the structured error body the IdP returns on 401/429.
type apiError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorSummary string `json:"errorSummary"`
	ErrorLink    string `json:"errorLink"`
	ErrorID      string `json:"errorId"`
}

func (e apiError) summary() string {
	return fmt.Sprintf("okta error code %s - %s", e.ErrorCode, e.ErrorSummary)
}

// Links is either a single link object or a list of them on the wire.
type Links []link

type link struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

func (l *Links) UnmarshalJSON(data []byte) error {
	var single link
	if err := json.Unmarshal(data, &single); err == nil {
		*l = Links{single}
		return nil
	}
	var multi []link
	if err := json.Unmarshal(data, &multi); err != nil {
		return err
	}
	*l = multi
	return nil
}

func (l Links) href() (string, bool) {
	if len(l) == 0 {
		return "", false
	}
	return l[0].Href, true
}

// Profile carries the per-credential details of an enrolled factor. Only
// CredentialID matters to the exchange, the rest is shown to the operator.
type Profile struct {
	CredentialID string `json:"credentialId"`
	DeviceType   string `json:"deviceType"`
	Name         string `json:"name"`
	Platform     string `json:"platform"`
	Version      string `json:"version"`
}

// Factor is one MFA option offered by the IdP. The wire format is a tagged
// union on factorType, decoded here into a single struct with a Kind.
type Factor struct {
	Kind       FactorKind
	Provider   string
	VendorName string
	Profile    *Profile
	Links      map[string]Links
}

func (f *Factor) UnmarshalJSON(data []byte) error {
	var raw struct {
		FactorType string           `json:"factorType"`
		Provider   string           `json:"provider"`
		VendorName string           `json:"vendorName"`
		Profile    *Profile         `json:"profile"`
		Links      map[string]Links `json:"_links"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.FactorType {
	case "webauthn":
		f.Kind = FactorWebAuthn
	case "token:software:totp":
		f.Kind = FactorTotp
	case "push":
		f.Kind = FactorPush
	default:
		f.Kind = FactorUnimplemented
	}
	f.Provider = raw.Provider
	f.VendorName = raw.VendorName
	f.Profile = raw.Profile
	f.Links = raw.Links
	return nil
}

// VerificationURL returns the endpoint the factor is verified against.
// WebAuthn factors link it as "next", TOTP and push as "verify".
func (f Factor) VerificationURL() (string, bool) {
	var key string
	switch f.Kind {
	case FactorWebAuthn:
		key = "next"
	case FactorTotp, FactorPush:
		key = "verify"
	default:
		return "", false
	}
	links, ok := f.Links[key]
	if !ok {
		return "", false
	}
	return links.href()
}

func (f Factor) CredentialID() (string, bool) {
	if f.Kind == FactorUnimplemented || f.Profile == nil || f.Profile.CredentialID == "" {
		return "", false
	}
	return f.Profile.CredentialID, true
}

func (f Factor) ProviderName() (string, bool) {
	switch f.Kind {
	case FactorTotp, FactorPush:
		return f.Provider, f.Provider != ""
	}
	return "", false
}

func (f Factor) HumanName() string {
	switch f.Kind {
	case FactorPush:
		return "Okta Push"
	case FactorWebAuthn:
		return "WebAuthn (U2F)"
	case FactorTotp:
		return fmt.Sprintf("TOTP (%s)", f.Provider)
	}
	return "Unimplemented"
}

type challenge struct {
	Challenge        string `json:"challenge"`
	UserVerification string `json:"userVerification"`
}

type embedded struct {
	FactorTypes []Factor   `json:"factorTypes"`
	Factors     []Factor   `json:"factors"`
	Challenge   *challenge `json:"challenge"`
}

// Transaction is one in-flight step of the authn protocol. Each call to the
// IdP replaces it wholesale, it is never mutated in place.
type Transaction struct {
	StateToken   string           `json:"stateToken"`
	SessionToken string           `json:"sessionToken"`
	Status       TransactionState `json:"status"`
	FactorResult FactorResult     `json:"factorResult"`
	Embedded     *embedded        `json:"_embedded"`
	Links        map[string]Links `json:"_links"`
}

func parseTransaction(body []byte) (*Transaction, error) {
	tx := &Transaction{}
	if err := json.Unmarshal(body, tx); err != nil {
		return nil, fmt.Errorf("decoding authn response: %s, %w", err, ErrProtocolViolation)
	}
	return tx, nil
}

// Factors merges the generic factorTypes entries with the enrolled factors,
// dropping variants this client does not implement from the latter.
func (t *Transaction) Factors() []Factor {
	if t.Embedded == nil {
		return nil
	}
	factors := append([]Factor{}, t.Embedded.FactorTypes...)
	for _, f := range t.Embedded.Factors {
		if f.Kind == FactorUnimplemented {
			continue
		}
		factors = append(factors, f)
	}
	return factors
}

func (t *Transaction) Challenge() (string, bool) {
	if t.Embedded == nil || t.Embedded.Challenge == nil {
		return "", false
	}
	return t.Embedded.Challenge.Challenge, true
}

// Next returns the link the transaction should be advanced against.
func (t *Transaction) Next() (string, bool) {
	links, ok := t.Links["next"]
	if !ok {
		return "", false
	}
	return links.href()
}
