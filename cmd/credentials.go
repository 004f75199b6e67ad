package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/user"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dnitsch/okta-cli-auth/internal/cmdutils"
	"github.com/dnitsch/okta-cli-auth/internal/config"
	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/httpclient"
	"github.com/dnitsch/okta-cli-auth/internal/okta"
	"github.com/dnitsch/okta-cli-auth/internal/prompt"
	"github.com/dnitsch/okta-cli-auth/internal/ssoportal"
	"github.com/dnitsch/okta-cli-auth/internal/u2f"
)

var ErrUnableToCreateSession = errors.New("sts - cannot start a new session")

var (
	appUrl           string
	username         string
	roleArn          string
	region           string
	mfa              string
	mfaProvider      string
	output           string
	useCache         bool
	withPassword     bool
	reloadBeforeTime int

	credsCmd = &cobra.Command{
		Use:   "creds",
		Short: "Retrieve AWS credentials through your IdP",
		Long:  `Retrieve AWS credentials through username/password and MFA authentication against your IdP. Defaults for a configured host are picked up from the config file, flags override them.`,
	}

	awsCredsCmd = &cobra.Command{
		Use:   "aws",
		Short: "Get AWS credentials via a direct SAML trust",
		Long:  `Get AWS credentials for an IdP application with a direct SAML trust to AWS. Without --role-arn every role in the assertion is assumed and output as env exports.`,
		RunE:  getAwsCreds,
	}

	awsSsoCredsCmd = &cobra.Command{
		Use:   "aws-sso",
		Short: "Get AWS credentials via the SSO portal",
		Long:  `Get AWS credentials for an IdP application fronting IAM Identity Center. Without --role-arn a credential is generated for every assigned role.`,
		RunE:  getAwsSsoCreds,
	}
)

func init() {
	credsCmd.PersistentFlags().StringVarP(&appUrl, "app-url", "", "", "IdP application url, defaults to the configured host")
	credsCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "IdP username, defaults to the configured host's username")
	credsCmd.PersistentFlags().StringVarP(&roleArn, "role-arn", "r", "", "Only retrieve credentials for this role")
	credsCmd.PersistentFlags().StringVarP(&mfa, "mfa", "m", "", "MFA factor to use [webauthn|totp|push], prompts when multiple factors are offered and unset")
	credsCmd.PersistentFlags().StringVarP(&mfaProvider, "mfa-provider", "", "", "Narrows a totp selection to a specific provider")
	credsCmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "Output format [json|env]. json emits the credential_process payload and requires a single role")
	credsCmd.PersistentFlags().BoolVarP(&useCache, "cached", "", false, "Reuse a still-valid credential from the OS secret store, requires --role-arn")
	credsCmd.PersistentFlags().BoolVarP(&withPassword, "with-password", "w", false, "Prompt for the password even when one is stored in the keyring")
	credsCmd.PersistentFlags().IntVarP(&reloadBeforeTime, "reload-before", "", 0, "Treat cached credentials expiring within this many seconds as already expired")
	awsSsoCredsCmd.PersistentFlags().StringVarP(&region, "region", "", "", "SSO portal region, defaults to the configured host's region")

	credsCmd.AddCommand(awsCredsCmd)
	credsCmd.AddCommand(awsSsoCredsCmd)
	RootCmd.AddCommand(credsCmd)
}

func getAwsCreds(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	host := config.AwsHost{AppUrl: appUrl, Username: username, Mfa: mfa, MfaProvider: mfaProvider}
	if defaults, err := settings.FindAwsHost(appUrl); err == nil {
		host = mergeHost(host, *defaults)
	}

	conf, err := buildConf(host, "")
	if err != nil {
		return err
	}

	svc, err := stsClient(ctx)
	if err != nil {
		return err
	}

	httpClient, err := httpclient.New()
	if err != nil {
		return err
	}

	secretStore, term, password, err := prepareStores(conf, settings.KeyringEnabled)
	if err != nil {
		return err
	}

	issuer := okta.NewAuthenticator(httpClient, term, u2f.NewHardwareClient())
	exchanger := credentialexchange.NewSamlExchanger(httpClient, svc)
	validate := func(ctx context.Context, cred *credentialexchange.AWSCredentials) (bool, error) {
		return credentialexchange.IsValid(ctx, cred, conf.BaseConfig.ReloadBeforeTime, svc)
	}

	return cmdutils.GetCreds(ctx, issuer, exchanger, secretStore, validate, conf, password)
}

func getAwsSsoCreds(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	host := config.AwsSsoHost{
		AwsHost: config.AwsHost{AppUrl: appUrl, Username: username, Mfa: mfa, MfaProvider: mfaProvider},
		Region:  region,
	}
	if defaults, err := settings.FindAwsSsoHost(appUrl); err == nil {
		host.AwsHost = mergeHost(host.AwsHost, defaults.AwsHost)
		if host.Region == "" {
			host.Region = defaults.Region
		}
	}
	if host.Region == "" {
		return fmt.Errorf("please supply a region, %w", cmdutils.ErrMissingArg)
	}

	conf, err := buildConf(host.AwsHost, host.Region)
	if err != nil {
		return err
	}

	httpClient, err := httpclient.New()
	if err != nil {
		return err
	}

	secretStore, term, password, err := prepareStores(conf, settings.KeyringEnabled)
	if err != nil {
		return err
	}

	issuer := okta.NewAuthenticator(httpClient, term, u2f.NewHardwareClient())
	exchanger := ssoportal.NewExchanger(httpClient, conf.Region)
	// the portal path has no STS round trip to verify against, expiry is all
	// there is
	validate := func(ctx context.Context, cred *credentialexchange.AWSCredentials) (bool, error) {
		if cred == nil {
			return false, nil
		}
		return !credentialexchange.ReloadBeforeExpiry(cred.Expires, conf.BaseConfig.ReloadBeforeTime), nil
	}

	return cmdutils.GetCreds(ctx, issuer, exchanger, secretStore, validate, conf, password)
}

// mergeHost fills flag-shaped gaps from the stored host defaults.
func mergeHost(flags, defaults config.AwsHost) config.AwsHost {
	if flags.AppUrl == "" {
		flags.AppUrl = defaults.AppUrl
	}
	if flags.Username == "" {
		flags.Username = defaults.Username
	}
	if flags.Mfa == "" {
		flags.Mfa = defaults.Mfa
	}
	if flags.MfaProvider == "" {
		flags.MfaProvider = defaults.MfaProvider
	}
	return flags
}

func buildConf(host config.AwsHost, region string) (credentialexchange.CredentialConfig, error) {
	if host.AppUrl == "" {
		return credentialexchange.CredentialConfig{}, fmt.Errorf("please supply an app-url, %w", cmdutils.ErrMissingArg)
	}
	if host.Username == "" {
		return credentialexchange.CredentialConfig{}, fmt.Errorf("please supply a username, %w", cmdutils.ErrMissingArg)
	}
	mfaSelection, err := okta.MfaFromString(host.Mfa)
	if err != nil {
		return credentialexchange.CredentialConfig{}, err
	}
	if output != string(credentialexchange.OutputJson) && output != string(credentialexchange.OutputEnv) {
		return credentialexchange.CredentialConfig{}, fmt.Errorf("output %q, %w", output, cmdutils.ErrMissingArg)
	}

	return credentialexchange.CredentialConfig{
		BaseConfig: credentialexchange.BaseConfig{
			Username:         host.Username,
			CfgSectionName:   cfgSectionName,
			StoreInProfile:   storeInProfile,
			ReloadBeforeTime: reloadBeforeTime,
		},
		AppUrl:      host.AppUrl,
		RoleArn:     roleArn,
		Region:      region,
		Mfa:         string(mfaSelection),
		MfaProvider: host.MfaProvider,
		Output:      credentialexchange.OutputFormat(output),
		UseCache:    useCache,
	}, nil
}

func stsClient(ctx context.Context) (*sts.Client, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config %s, %w", err, ErrUnableToCreateSession)
	}
	return sts.NewFromConfig(cfg), nil
}

// prepareStores builds the credential cache and resolves the IdP password,
// prompting when the keyring has nothing (or --with-password forces it).
func prepareStores(conf credentialexchange.CredentialConfig, keyringEnabled bool) (*credentialexchange.SecretStore, *prompt.Terminal, string, error) {
	currentUser, err := user.Current()
	if err != nil {
		return nil, nil, "", err
	}

	namer := fmt.Sprintf("%s-%s", credentialexchange.SELF_NAME, credentialexchange.RoleKeyConverter(conf.RoleArn))
	secretStore, err := credentialexchange.NewSecretStore(conf.RoleArn, namer, os.TempDir(), currentUser.Username)
	if err != nil {
		return nil, nil, "", err
	}

	term := prompt.New()
	password, err := resolvePassword(conf, term, keyringEnabled)
	if err != nil {
		return nil, nil, "", err
	}
	return secretStore, term, password, nil
}

func resolvePassword(conf credentialexchange.CredentialConfig, term *prompt.Terminal, keyringEnabled bool) (string, error) {
	appDomain, err := url.Parse(conf.AppUrl)
	if err != nil {
		return "", err
	}
	passwordStore := credentialexchange.NewPasswordStore(appDomain.Hostname(), conf.BaseConfig.Username, keyringEnabled)

	if !withPassword {
		password, found, err := passwordStore.Password()
		if err != nil {
			return "", err
		}
		if found {
			return password, nil
		}
	}

	password, err := term.Password(conf.BaseConfig.Username)
	if err != nil {
		return "", err
	}
	if keyringEnabled {
		save, err := term.Confirm("Save password to the OS keyring?")
		if err != nil {
			return "", err
		}
		if save {
			if err := passwordStore.Save(password); err != nil {
				return "", err
			}
		}
	}
	return password, nil
}
