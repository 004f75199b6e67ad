// Package saml extracts the identity assertion an IdP application embeds in
// an HTML page and pulls the AWS bits out of it.
package saml

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/beevik/etree"
)

const roleAttributeName = "https://aws.amazon.com/SAML/Attributes/Role"

var (
	ErrAssertionNotFound      = errors.New("saml assertion not found in response body")
	ErrAssertionMalformed     = errors.New("saml assertion malformed")
	ErrRoleAttributeMalformed = errors.New("saml role attribute malformed")
	ErrDestinationNotFound    = errors.New("saml destination not found")
)

// RolePair is one principal/role tuple from the assertion's Role attribute.
type RolePair struct {
	PrincipalArn string
	RoleArn      string
}

// Assertion holds the raw (still base64-encoded) SAMLResponse value, which is
// what both AWS exchange protocols consume, plus the decoded XML document.
type Assertion struct {
	raw string
	doc *etree.Document
}

// Parse locates the SAMLResponse form field in an HTML body and decodes it.
func Parse(htmlBody string) (*Assertion, error) {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrAssertionNotFound)
	}

	value, exists := page.Find(`input[name="SAMLResponse"]`).First().Attr("value")
	if !exists {
		return nil, ErrAssertionNotFound
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrAssertionMalformed)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(decoded); err != nil {
		return nil, fmt.Errorf("%s, %w", err, ErrAssertionMalformed)
	}
	// etree tolerates input with no root element
	if doc.Root() == nil {
		return nil, fmt.Errorf("no xml root element, %w", ErrAssertionMalformed)
	}

	return &Assertion{raw: value, doc: doc}, nil
}

// Raw returns the still-encoded assertion exactly as posted by the IdP.
func (a *Assertion) Raw() string {
	return a.raw
}

// Roles returns the (principal, role) pairs of the AWS Role attribute in
// document order. A value that does not split into two non-empty parts fails
// the whole parse rather than being skipped - the pairs feed a credential
// exchange and a silently dropped entry would be indistinguishable from a
// revoked one.
func (a *Assertion) Roles() ([]RolePair, error) {
	pairs := []RolePair{}
	for _, attr := range a.doc.FindElements("//Attribute") {
		if attr.SelectAttrValue("Name", "") != roleAttributeName {
			continue
		}
		for _, av := range attr.ChildElements() {
			if av.Tag != "AttributeValue" {
				continue
			}
			value := strings.TrimSpace(av.Text())
			principal, role, found := strings.Cut(value, ",")
			if !found || principal == "" || role == "" {
				return nil, fmt.Errorf("value %q, %w", value, ErrRoleAttributeMalformed)
			}
			pairs = append(pairs, RolePair{PrincipalArn: principal, RoleArn: role})
		}
	}
	return pairs, nil
}

// Destination returns the Destination attribute of the Response element. Only
// the SSO portal flow needs it, the direct STS flow posts nowhere.
func (a *Assertion) Destination() (string, error) {
	el := a.doc.FindElement("//Response")
	if el == nil {
		return "", ErrDestinationNotFound
	}
	dest := el.SelectAttrValue("Destination", "")
	if dest == "" {
		return "", ErrDestinationNotFound
	}
	return dest, nil
}
