package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/logger"
)

var (
	cfgSectionName string
	cfgFile        string
	storeInProfile bool
	verbose        bool
	RootCmd        = &cobra.Command{
		Use:   "okta-cli-auth",
		Short: "CLI tool for retrieving AWS temporary credentials through your IdP",
		Long: `CLI tool for retrieving AWS temporary credentials through username/password and MFA authentication against your IdP.
Supports both a direct SAML trust to AWS and role assignment via the AWS SSO portal.
Returns the credential_process payload by default, or stores credentials under a named profile section in $HOME/.aws/credentials`,
	}
)

func Execute(ctx context.Context) {
	if err := RootCmd.ExecuteContext(ctx); err != nil {
		logger.Exit(err)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVarP(&cfgSectionName, "cfg-section", "", "", "config section name in the AWS credentials file, used together with store-profile")
	RootCmd.PersistentFlags().BoolVarP(&storeInProfile, "store-profile", "s", false, "By default the credentials are returned to stdout to be used by the credential_process. Set this flag to instead store the credentials under a named profile section")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(fmt.Sprintf(".%s", credentialexchange.SELF_NAME))
	}

	viper.AutomaticEnv()

	logger.IsTraceEnabled = verbose

	if err := viper.ReadInConfig(); err == nil {
		logger.Traceln("Using config file: %s", viper.ConfigFileUsed())
	}
}
