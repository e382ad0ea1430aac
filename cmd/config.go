package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after applying defaults, the config file and KVM_UPDATE_* environment overrides.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(Cfg)
		if err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	RootCmd.AddCommand(ConfigCmd)
}
