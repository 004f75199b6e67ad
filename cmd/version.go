package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dnitsch/okta-cli-auth/internal/credentialexchange"
	"github.com/dnitsch/okta-cli-auth/internal/logger"
)

var (
	Version  string = "0.0.1"
	Revision string = "1111aaaa"
)

func init() {
	RootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: fmt.Sprintf("Get version number %s", credentialexchange.SELF_NAME),
	Long:  `Version and Revision number of the installed CLI`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\nRevision: %s\n", Version, Revision)
		logger.CleanExit()
	},
}
