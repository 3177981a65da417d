package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandboxrun/epicbox/internal/config"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the profiles declared in EPICBOX_PROFILES",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := os.Getenv(config.ManifestPathEnv)
		if path == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no profile manifest configured (set EPICBOX_PROFILES)")
			return nil
		}

		profiles, err := config.LoadManifest(path)
		if err != nil {
			return err
		}
		for _, p := range profiles {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\timage=%s\tuser=%s\tread_only=%t\tnetwork_disabled=%t\n",
				p.Name, p.Image, p.User, p.ReadOnly, p.NetworkDisabled)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(profilesCmd)
}
