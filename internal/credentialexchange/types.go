package credentialexchange

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var ErrArnMalformed = errors.New("role arn malformed")

var roleArnPattern = regexp.MustCompile(`^arn:aws:iam::([0-9]+):role/(.+)$`)

// AWSCredentials is the final artifact of every exchange path. The JSON tags
// line up with the credential_process contract.
type AWSCredentials struct {
	Version         int
	AWSAccessKey    string    `json:"AccessKeyId"`
	AWSSecretKey    string    `json:"SecretAccessKey"`
	AWSSessionToken string    `json:"SessionToken"`
	RoleARN         string    `json:"-"`
	Expires         time.Time `json:"Expiration"`
}

// Role names an assumable cloud role by account and name.
type Role struct {
	AccountID string
	RoleName  string
}

// RoleFromArn parses an arn:aws:iam::{account}:role/{name} string and rejects
// anything else.
func RoleFromArn(arn string) (Role, error) {
	m := roleArnPattern.FindStringSubmatch(arn)
	if m == nil {
		return Role{}, fmt.Errorf("%q, %w", arn, ErrArnMalformed)
	}
	return Role{AccountID: m[1], RoleName: m[2]}, nil
}

func (r Role) Arn() string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", r.AccountID, r.RoleName)
}
