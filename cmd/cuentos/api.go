package main

import (
	"github.com/spf13/cobra"

	"github.com/cuentosapp/cuentos-server/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running cuentos server via HTTP.

These commands require a running server (cuentos serve).
Use --server to specify a custom server URL.

Examples:
  cuentos api health                  # Check server health
  cuentos api upload bosque.txt       # Upload a manuscript
  cuentos api parsing jobs <src-id>   # List a source's jobs
  cuentos api parsing status <job-id> # Poll one job`,
}

var parsingCmd = &cobra.Command{
	Use:   "parsing",
	Short: "Parsing job commands",
}

var chaptersCmd = &cobra.Command{
	Use:   "chapters",
	Short: "Chapter review commands",
}

var ttsCmd = &cobra.Command{
	Use:   "tts",
	Short: "Narration commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health and upload at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.UploadSourceEndpoint{}).Command(getServerURL))

	// Parsing as subcommand group
	for _, ep := range endpoints.ParsingCommands() {
		parsingCmd.AddCommand(ep.Command(getServerURL))
	}

	// Chapters as subcommand group
	for _, ep := range endpoints.ChapterCommands() {
		chaptersCmd.AddCommand(ep.Command(getServerURL))
	}

	// Narration as subcommand group
	ttsCmd.AddCommand((&endpoints.StartTTSEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(parsingCmd)
	apiCmd.AddCommand(chaptersCmd)
	apiCmd.AddCommand(ttsCmd)
	rootCmd.AddCommand(apiCmd)
}
