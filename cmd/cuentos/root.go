package main

import (
	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/api"
	"github.com/cuentosapp/cuentos-server/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "cuentos",
	Short: "Narration pipeline for Spanish-language storybooks",
	Long: `Cuentos turns manuscript files into narrated, word-synchronized
storybook chapters.

The pipeline includes:
  - Manuscript parsing with chapter and sentence detection
  - Chapter review and approval
  - Text-to-speech narration per chapter
  - Word-level timing alignment for read-along highlighting`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.cuentos/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "cuentos home directory (default: ~/.cuentos)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
