package saml_test

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/dnitsch/okta-cli-auth/internal/saml"
)

func assertionHTML(xml string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(xml))
	return fmt.Sprintf(`<html><body><form method="post" action="https://example.com/saml">
<input type="hidden" name="SAMLResponse" value="%s"/>
<input type="hidden" name="RelayState" value=""/>
</form></body></html>`, encoded)
}

func responseXML(attributeValues string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<saml2p:Response xmlns:saml2p="urn:oasis:names:tc:SAML:2.0:protocol" Destination="https://portal.sso.example.com/saml">
  <saml2:Assertion xmlns:saml2="urn:oasis:names:tc:SAML:2.0:assertion">
    <saml2:AttributeStatement>
      <saml2:Attribute Name="https://aws.amazon.com/SAML/Attributes/Role">
%s
      </saml2:Attribute>
      <saml2:Attribute Name="https://aws.amazon.com/SAML/Attributes/SessionDuration">
        <saml2:AttributeValue>3600</saml2:AttributeValue>
      </saml2:Attribute>
    </saml2:AttributeStatement>
  </saml2:Assertion>
</saml2p:Response>`, attributeValues)
}

func Test_Roles_returned_in_document_order(t *testing.T) {
	xml := responseXML(`        <saml2:AttributeValue>arn:aws:iam::111111111111:saml-provider/idp,arn:aws:iam::111111111111:role/admin</saml2:AttributeValue>
        <saml2:AttributeValue>arn:aws:iam::222222222222:saml-provider/idp,arn:aws:iam::222222222222:role/readonly</saml2:AttributeValue>`)

	assertion, err := saml.Parse(assertionHTML(xml))
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}

	pairs, err := assertion.Roles()
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("got %d pairs, wanted 2", len(pairs))
	}
	want := []saml.RolePair{
		{PrincipalArn: "arn:aws:iam::111111111111:saml-provider/idp", RoleArn: "arn:aws:iam::111111111111:role/admin"},
		{PrincipalArn: "arn:aws:iam::222222222222:saml-provider/idp", RoleArn: "arn:aws:iam::222222222222:role/readonly"},
	}
	for i, pair := range pairs {
		if pair != want[i] {
			t.Errorf("pair %d: got %v, wanted %v", i, pair, want[i])
		}
	}
}

func Test_Roles_with_malformed_value_fails_whole_parse(t *testing.T) {
	ttests := map[string]struct {
		value string
	}{
		"no separator":      {value: "arn:aws:iam::111111111111:role/admin"},
		"empty role":        {value: "arn:aws:iam::111111111111:saml-provider/idp,"},
		"empty principal":   {value: ",arn:aws:iam::111111111111:role/admin"},
		"whitespace only":   {value: "   "},
		"separator alone":   {value: ","},
		"principal no role": {value: "arn:aws:iam::111111111111:saml-provider/idp"},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			xml := responseXML(fmt.Sprintf(`        <saml2:AttributeValue>arn:aws:iam::111111111111:saml-provider/idp,arn:aws:iam::111111111111:role/admin</saml2:AttributeValue>
        <saml2:AttributeValue>%s</saml2:AttributeValue>`, tt.value))
			assertion, err := saml.Parse(assertionHTML(xml))
			if err != nil {
				t.Fatalf("got %v, wanted nil", err)
			}
			if _, err := assertion.Roles(); !errors.Is(err, saml.ErrRoleAttributeMalformed) {
				t.Errorf("got %v, wanted ErrRoleAttributeMalformed", err)
			}
		})
	}
}

func Test_Parse_errors(t *testing.T) {
	ttests := map[string]struct {
		body   string
		expect error
	}{
		"no SAMLResponse field": {
			body:   `<html><body><form><input name="other" value="x"/></form></body></html>`,
			expect: saml.ErrAssertionNotFound,
		},
		"empty body": {
			body:   ``,
			expect: saml.ErrAssertionNotFound,
		},
		"not base64": {
			body:   `<html><body><input name="SAMLResponse" value="%%%not-base64%%%"/></body></html>`,
			expect: saml.ErrAssertionMalformed,
		},
		"not xml": {
			body:   fmt.Sprintf(`<html><body><input name="SAMLResponse" value="%s"/></body></html>`, base64.StdEncoding.EncodeToString([]byte("not xml at all"))),
			expect: saml.ErrAssertionMalformed,
		},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			if _, err := saml.Parse(tt.body); !errors.Is(err, tt.expect) {
				t.Errorf("got %v, wanted %v", err, tt.expect)
			}
		})
	}
}

func Test_Raw_preserves_encoded_assertion(t *testing.T) {
	xml := responseXML(`        <saml2:AttributeValue>arn:aws:iam::111111111111:saml-provider/idp,arn:aws:iam::111111111111:role/admin</saml2:AttributeValue>`)
	encoded := base64.StdEncoding.EncodeToString([]byte(xml))

	assertion, err := saml.Parse(assertionHTML(xml))
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
	if assertion.Raw() != encoded {
		t.Error("raw assertion does not match the posted value")
	}
}

func Test_Destination(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		xml := responseXML(`        <saml2:AttributeValue>arn:aws:iam::111111111111:saml-provider/idp,arn:aws:iam::111111111111:role/admin</saml2:AttributeValue>`)
		assertion, err := saml.Parse(assertionHTML(xml))
		if err != nil {
			t.Fatalf("got %v, wanted nil", err)
		}
		dest, err := assertion.Destination()
		if err != nil {
			t.Fatalf("got %v, wanted nil", err)
		}
		if dest != "https://portal.sso.example.com/saml" {
			t.Errorf("got %s, wanted the response destination", dest)
		}
	})

	t.Run("missing", func(t *testing.T) {
		xml := `<?xml version="1.0"?><saml2p:Response xmlns:saml2p="urn:oasis:names:tc:SAML:2.0:protocol"></saml2p:Response>`
		assertion, err := saml.Parse(assertionHTML(xml))
		if err != nil {
			t.Fatalf("got %v, wanted nil", err)
		}
		if _, err := assertion.Destination(); !errors.Is(err, saml.ErrDestinationNotFound) {
			t.Errorf("got %v, wanted ErrDestinationNotFound", err)
		}
	})
}
