package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/reformat/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configExampleCmd = &cobra.Command{
	Use:         "example",
	Short:       "Print an example configuration with every default",
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := config.Example()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
		return err
	},
}

func init() {
	configCmd.AddCommand(configExampleCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
