package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dnitsch/okta-cli-auth/internal/config"
	"github.com/dnitsch/okta-cli-auth/internal/logger"
)

var (
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage stored host defaults",
	}

	configAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Add or update a host's sign-in defaults",
	}

	configAddAwsCmd = &cobra.Command{
		Use:   "aws",
		Short: "Store defaults for a direct SAML trust host",
		RunE:  configAddAws,
	}

	configAddAwsSsoCmd = &cobra.Command{
		Use:   "aws-sso",
		Short: "Store defaults for an SSO portal host",
		RunE:  configAddAwsSso,
	}
)

func init() {
	for _, c := range []*cobra.Command{configAddAwsCmd, configAddAwsSsoCmd} {
		c.PersistentFlags().StringVarP(&appUrl, "app-url", "", "", "IdP application url")
		c.MarkPersistentFlagRequired("app-url")
		c.PersistentFlags().StringVarP(&username, "username", "u", "", "IdP username")
		c.MarkPersistentFlagRequired("username")
		c.PersistentFlags().StringVarP(&mfa, "mfa", "m", "", "Default MFA factor [webauthn|totp|push]")
		c.PersistentFlags().StringVarP(&mfaProvider, "mfa-provider", "", "", "Default totp provider")
	}
	configAddAwsSsoCmd.PersistentFlags().StringVarP(&region, "region", "", "", "SSO portal region")
	configAddAwsSsoCmd.MarkPersistentFlagRequired("region")

	configAddCmd.AddCommand(configAddAwsCmd)
	configAddCmd.AddCommand(configAddAwsSsoCmd)
	configCmd.AddCommand(configAddCmd)
	RootCmd.AddCommand(configCmd)
}

func configAddAws(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	host, err := newAwsHost()
	if err != nil {
		return err
	}
	settings.AddAwsHost(host)

	if err := settings.Save(viper.GetViper()); err != nil {
		return err
	}
	logger.Writeln("stored defaults for %s", host.AppUrl)
	return nil
}

func configAddAwsSso(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	host, err := newAwsHost()
	if err != nil {
		return err
	}
	settings.AddAwsSsoHost(config.AwsSsoHost{AwsHost: host, Region: region})

	if err := settings.Save(viper.GetViper()); err != nil {
		return err
	}
	logger.Writeln("stored defaults for %s", host.AppUrl)
	return nil
}

func newAwsHost() (config.AwsHost, error) {
	normalized, err := config.NormalizeAppUrl(appUrl)
	if err != nil {
		return config.AwsHost{}, err
	}
	return config.AwsHost{
		AppUrl:      normalized,
		Username:    username,
		Mfa:         mfa,
		MfaProvider: mfaProvider,
	}, nil
}
