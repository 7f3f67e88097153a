package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/uncia/histoflow/pkg/auth"
)

var (
	tokenCredentials string
	tokenFile        string
)

var tokenCmd = &cobra.Command{
	Use:   "token [flags]",
	Short: "Generate an OAuth token for result uploads",
	Long: `Generate and cache the OAuth token used to upload result files to the
object store, then verify it against the storage API.

The first run walks the installed-app flow: it prints an authorization
URL, reads the pasted code and exchanges it. Later runs reuse or refresh
the cached token, so this can run once on a workstation and the token
file copied to a headless machine.`,
	Example: `  # Generate token.json next to the credentials file
  histoflow token --credentials credentials.json

  # Refresh an existing token in a custom location
  histoflow token --credentials credentials.json --token-file ~/.histoflow/token.json`,
	PreRunE: validateTokenFlags,
	RunE:    runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenCredentials, "credentials", "credentials.json", "OAuth client credentials file")
	tokenCmd.Flags().StringVar(&tokenFile, "token-file", "token.json", "Where the token is cached")
}

func validateTokenFlags(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(tokenCredentials); os.IsNotExist(err) {
		return fmt.Errorf("credentials file does not exist: %s", tokenCredentials)
	}
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	tm, err := auth.NewWithConfig(auth.TokenConfig{
		CredentialsFile: tokenCredentials,
		TokenFile:       tokenFile,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()

	token, err := tm.Token(ctx)
	if err != nil {
		return err
	}

	email, err := tm.Verify(ctx, token)
	if err != nil {
		return fmt.Errorf("token saved but verification failed: %w", err)
	}

	color.Green("✓ Token valid for %s\n", email)
	color.Green("✓ Token cached at %s\n", tokenFile)
	return nil
}
