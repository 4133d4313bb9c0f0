package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the home directory and a default config file",
	Long: `Create the cuentos home directory (~/.cuentos) and write a
default config.yaml if one does not exist.

Edit the generated file to set API keys (via ${ENV_VAR} references)
and pick narration providers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}

		if h.ConfigExists() {
			fmt.Printf("Config already exists at %s\n", h.ConfigPath())
			return nil
		}

		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
