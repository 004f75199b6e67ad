package credentialexchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

var (
	ErrUnableAssume = errors.New("unable to assume")
	ErrRoleNotFound = errors.New("role not found in assertion")
)

// AWSRole aws role attributes for a single SAML assumption
type AWSRole struct {
	RoleARN      string
	PrincipalARN string
	Name         string
	Duration     int32
}

type AuthSamlApi interface {
	AssumeRoleWithSAML(ctx context.Context, params *sts.AssumeRoleWithSAMLInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithSAMLOutput, error)
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// LoginStsSaml exchanges a raw (still base64-encoded) saml assertion for STS
// creds on a single role.
func LoginStsSaml(ctx context.Context, samlResponse string, role AWSRole, svc AuthSamlApi) (*AWSCredentials, error) {
	params := &sts.AssumeRoleWithSAMLInput{
		PrincipalArn:    aws.String(role.PrincipalARN),
		RoleArn:         aws.String(role.RoleARN),
		SAMLAssertion:   aws.String(samlResponse),
		DurationSeconds: aws.Int32(role.Duration),
	}

	resp, err := svc.AssumeRoleWithSAML(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve STS credentials using SAML: %s, %w", err.Error(), ErrUnableAssume)
	}

	return &AWSCredentials{
		AWSAccessKey:    aws.ToString(resp.Credentials.AccessKeyId),
		AWSSecretKey:    aws.ToString(resp.Credentials.SecretAccessKey),
		AWSSessionToken: aws.ToString(resp.Credentials.SessionToken),
		RoleARN:         role.RoleARN,
		Expires:         aws.ToTime(resp.Credentials.Expiration),
	}, nil
}

// IsValid reports whether a stored credential can still be used - it must not
// be near expiry and STS must still accept it.
func IsValid(ctx context.Context, cred *AWSCredentials, reloadBeforeSeconds int, svc AuthSamlApi) (bool, error) {
	if cred == nil {
		return false, nil
	}

	if ReloadBeforeExpiry(cred.Expires, reloadBeforeSeconds) {
		return false, nil
	}

	if _, err := svc.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}, func(o *sts.Options) {
		o.Credentials = aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cred.AWSAccessKey,
				SecretAccessKey: cred.AWSSecretKey,
				SessionToken:    cred.AWSSessionToken,
			}, nil
		})
	}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ExpiredToken" {
			return false, nil
		}
		return false, fmt.Errorf("failed to check credential: %s, %w", err, ErrUnableAssume)
	}

	return true, nil
}
