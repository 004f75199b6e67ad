package credentialexchange_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/httpclient"
)

const twoRoleAssertion = `<?xml version="1.0" encoding="UTF-8"?>
<saml2p:Response xmlns:saml2p="urn:oasis:names:tc:SAML:2.0:protocol" Destination="https://signin.aws.amazon.com/saml">
  <saml2:Assertion xmlns:saml2="urn:oasis:names:tc:SAML:2.0:assertion">
    <saml2:AttributeStatement>
      <saml2:Attribute Name="https://aws.amazon.com/SAML/Attributes/Role">
        <saml2:AttributeValue>arn:aws:iam::111111111111:saml-provider/idp,arn:aws:iam::111111111111:role/admin</saml2:AttributeValue>
        <saml2:AttributeValue>arn:aws:iam::222222222222:saml-provider/idp,arn:aws:iam::222222222222:role/readonly</saml2:AttributeValue>
      </saml2:Attribute>
    </saml2:AttributeStatement>
  </saml2:Assertion>
</saml2p:Response>`

func newAssertionServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sessionToken") == "" {
			t.Error("got no sessionToken, wanted one")
		}
		if !strings.Contains(r.Header.Get("Accept"), "text/html") {
			t.Errorf("got Accept %s, wanted html for the assertion page", r.Header.Get("Accept"))
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(twoRoleAssertion))
		fmt.Fprintf(w, `<html><body><form><input name="SAMLResponse" value="%s"/></form></body></html>`, encoded)
	}))
}

func newExchangerSvc() *mockAuthSamlApi {
	return &mockAuthSamlApi{
		assumeRoleWithSAML: func(ctx context.Context, params *sts.AssumeRoleWithSAMLInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithSAMLOutput, error) {
			return &sts.AssumeRoleWithSAMLOutput{Credentials: &types.Credentials{
				AccessKeyId:     aws.String("AKIA-" + aws.ToString(params.RoleArn)),
				SecretAccessKey: aws.String("secret"),
				SessionToken:    aws.String("session"),
				Expiration:      aws.Time(time.Now().Add(time.Hour)),
			}}, nil
		},
	}
}

func Test_SamlExchanger_assumes_every_role_in_order(t *testing.T) {
	ts := newAssertionServer(t)
	defer ts.Close()

	client, err := httpclient.New()
	if err != nil {
		t.Fatal(err)
	}

	creds, err := credentialexchange.NewSamlExchanger(client, newExchangerSvc()).Run(context.TODO(), ts.URL, "tok-1", "")
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
	if len(creds) != 2 {
		t.Fatalf("got %d credentials, wanted 2", len(creds))
	}
	if creds[0].RoleARN != "arn:aws:iam::111111111111:role/admin" {
		t.Errorf("got %s, wanted the first assertion role", creds[0].RoleARN)
	}
	if creds[1].RoleARN != "arn:aws:iam::222222222222:role/readonly" {
		t.Errorf("got %s, wanted the second assertion role", creds[1].RoleARN)
	}
}

func Test_SamlExchanger_filters_to_requested_role(t *testing.T) {
	ts := newAssertionServer(t)
	defer ts.Close()

	client, err := httpclient.New()
	if err != nil {
		t.Fatal(err)
	}

	creds, err := credentialexchange.NewSamlExchanger(client, newExchangerSvc()).Run(context.TODO(), ts.URL, "tok-1", "arn:aws:iam::222222222222:role/readonly")
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
	if len(creds) != 1 {
		t.Fatalf("got %d credentials, wanted 1", len(creds))
	}
	if creds[0].RoleARN != "arn:aws:iam::222222222222:role/readonly" {
		t.Errorf("got %s, wanted the requested role", creds[0].RoleARN)
	}
}

func Test_SamlExchanger_unknown_role_fails(t *testing.T) {
	ts := newAssertionServer(t)
	defer ts.Close()

	client, err := httpclient.New()
	if err != nil {
		t.Fatal(err)
	}

	_, err = credentialexchange.NewSamlExchanger(client, newExchangerSvc()).Run(context.TODO(), ts.URL, "tok-1", "arn:aws:iam::333333333333:role/ghost")
	if !errors.Is(err, credentialexchange.ErrRoleNotFound) {
		t.Fatalf("got %v, wanted ErrRoleNotFound", err)
	}
}

func Test_SamlExchanger_failed_assumption_fails_whole_run(t *testing.T) {
	ts := newAssertionServer(t)
	defer ts.Close()

	client, err := httpclient.New()
	if err != nil {
		t.Fatal(err)
	}

	svc := &mockAuthSamlApi{
		assumeRoleWithSAML: func(ctx context.Context, params *sts.AssumeRoleWithSAMLInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithSAMLOutput, error) {
			if aws.ToString(params.RoleArn) == "arn:aws:iam::222222222222:role/readonly" {
				return nil, errors.New("AccessDenied")
			}
			return newExchangerSvc().assumeRoleWithSAML(ctx, params, optFns...)
		},
	}

	if _, err := credentialexchange.NewSamlExchanger(client, svc).Run(context.TODO(), ts.URL, "tok-1", ""); !errors.Is(err, credentialexchange.ErrUnableAssume) {
		t.Fatalf("got %v, wanted ErrUnableAssume", err)
	}
}
