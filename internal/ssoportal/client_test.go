package ssoportal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/ssoportal"
)

type mockPortalApi struct {
	listAccounts        func(ctx context.Context, token string) ([]ssoportal.Account, error)
	listRoles           func(ctx context.Context, token, accountID string) ([]credentialexchange.Role, error)
	generateCredentials func(ctx context.Context, token string, role credentialexchange.Role) (credentialexchange.AWSCredentials, error)
}

func (m *mockPortalApi) ListAccounts(ctx context.Context, token string) ([]ssoportal.Account, error) {
	return m.listAccounts(ctx, token)
}

func (m *mockPortalApi) ListRoles(ctx context.Context, token, accountID string) ([]credentialexchange.Role, error) {
	return m.listRoles(ctx, token, accountID)
}

func (m *mockPortalApi) GenerateCredentials(ctx context.Context, token string, role credentialexchange.Role) (credentialexchange.AWSCredentials, error) {
	return m.generateCredentials(ctx, token, role)
}

func Test_ListRoleArns_keeps_account_order(t *testing.T) {
	api := &mockPortalApi{
		listAccounts: func(ctx context.Context, token string) ([]ssoportal.Account, error) {
			return []ssoportal.Account{
				{AccountID: "111", AccountName: "dev"},
				{AccountID: "222", AccountName: "prod"},
			}, nil
		},
		listRoles: func(ctx context.Context, token, accountID string) ([]credentialexchange.Role, error) {
			if accountID == "111" {
				// slower account must not lose its slot
				time.Sleep(10 * time.Millisecond)
				return []credentialexchange.Role{
					{AccountID: "111", RoleName: "admin"},
					{AccountID: "111", RoleName: "readonly"},
				}, nil
			}
			return []credentialexchange.Role{{AccountID: "222", RoleName: "admin"}}, nil
		},
	}

	roles, err := ssoportal.NewClient(api).ListRoleArns(context.TODO(), "TheToken")
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}

	want := []credentialexchange.Role{
		{AccountID: "111", RoleName: "admin"},
		{AccountID: "111", RoleName: "readonly"},
		{AccountID: "222", RoleName: "admin"},
	}
	if len(roles) != len(want) {
		t.Fatalf("got %d roles, wanted %d", len(roles), len(want))
	}
	for i, role := range roles {
		if role != want[i] {
			t.Errorf("role %d: got %v, wanted %v", i, role, want[i])
		}
	}
}

func Test_ListRoleArns_propagates_account_failure(t *testing.T) {
	wantErr := errors.New("portal unavailable")
	api := &mockPortalApi{
		listAccounts: func(ctx context.Context, token string) ([]ssoportal.Account, error) {
			return []ssoportal.Account{{AccountID: "111"}, {AccountID: "222"}}, nil
		},
		listRoles: func(ctx context.Context, token, accountID string) ([]credentialexchange.Role, error) {
			if accountID == "222" {
				return nil, wantErr
			}
			return []credentialexchange.Role{{AccountID: "111", RoleName: "admin"}}, nil
		},
	}

	if _, err := ssoportal.NewClient(api).ListRoleArns(context.TODO(), "TheToken"); !errors.Is(err, wantErr) {
		t.Fatalf("got %v, wanted the listing error", err)
	}
}

func Test_ListCredentials_keeps_role_order(t *testing.T) {
	api := &mockPortalApi{
		generateCredentials: func(ctx context.Context, token string, role credentialexchange.Role) (credentialexchange.AWSCredentials, error) {
			if role.RoleName == "admin" {
				time.Sleep(10 * time.Millisecond)
			}
			return credentialexchange.AWSCredentials{RoleARN: role.Arn()}, nil
		},
	}

	roles := []credentialexchange.Role{
		{AccountID: "111", RoleName: "admin"},
		{AccountID: "222", RoleName: "readonly"},
	}
	creds, err := ssoportal.NewClient(api).ListCredentials(context.TODO(), "TheToken", roles)
	if err != nil {
		t.Fatalf("got %v, wanted nil", err)
	}
	if len(creds) != 2 {
		t.Fatalf("got %d credentials, wanted 2", len(creds))
	}
	if creds[0].RoleARN != "arn:aws:iam::111:role/admin" || creds[1].RoleARN != "arn:aws:iam::222:role/readonly" {
		t.Errorf("got %v, wanted role order preserved", creds)
	}
}

func Test_ListCredentials_fails_fast(t *testing.T) {
	wantErr := errors.New("role gone")
	api := &mockPortalApi{
		generateCredentials: func(ctx context.Context, token string, role credentialexchange.Role) (credentialexchange.AWSCredentials, error) {
			if role.RoleName == "ghost" {
				return credentialexchange.AWSCredentials{}, wantErr
			}
			return credentialexchange.AWSCredentials{RoleARN: role.Arn()}, nil
		},
	}

	roles := []credentialexchange.Role{
		{AccountID: "111", RoleName: "admin"},
		{AccountID: "111", RoleName: "ghost"},
	}
	if _, err := ssoportal.NewClient(api).ListCredentials(context.TODO(), "TheToken", roles); !errors.Is(err, wantErr) {
		t.Fatalf("got %v, wanted the generation error", err)
	}
}
