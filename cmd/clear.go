package cmd

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/logger"
)

var clearCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Clears any stored credentials in the OS secret store",
	RunE:  clear,
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.AddCommand(clearCmd)
}

func clear(cmd *cobra.Command, args []string) error {
	currentUser, err := user.Current()
	if err != nil {
		return err
	}

	secretStore, err := credentialexchange.NewSecretStore("",
		fmt.Sprintf("%s-%s", credentialexchange.SELF_NAME, credentialexchange.RoleKeyConverter("")),
		os.TempDir(), currentUser.Username)
	if err != nil {
		return err
	}

	if err := secretStore.ClearAll(); err != nil {
		return err
	}

	if err := os.Remove(credentialexchange.ConfigIniFile("")); err != nil && !os.IsNotExist(err) {
		return err
	}
	logger.Writeln("cleared stored credentials")
	return nil
}
