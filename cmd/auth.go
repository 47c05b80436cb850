package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaneholloman/zele-sub000/internal/credentials"
)

func newAuthCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize an account and store its credential",
		Long: `Auth walks through the OAuth authorization flow for one account:
it prints the consent URL, exchanges the pasted authorization code for
tokens, and stores the credential in the local database keyed by the
account address and OAuth client id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			if app.cfg.OAuth.ClientID == "" || app.cfg.OAuth.ClientSecret == "" {
				return fmt.Errorf("oauth.client_id and oauth.client_secret must be set in %s", app.cfgPath)
			}
			if account == "" {
				return fmt.Errorf("--account is required")
			}

			conf := oauthConfig(app.cfg)
			fmt.Printf("Open this URL in your browser and authorize %s:\n\n  %s\n\n", account, conf.AuthCodeURL("state"))
			fmt.Print("Paste the authorization code: ")

			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("empty authorization code")
			}

			token, err := conf.Exchange(ctx, code)
			if err != nil {
				return fmt.Errorf("exchanging authorization code: %w", err)
			}

			id := app.cfg.Identity(account)
			cred := credentials.Credential{
				AccessToken:  token.AccessToken,
				RefreshToken: token.RefreshToken,
				TokenType:    token.TokenType,
				Expiry:       token.Expiry,
			}
			if err := app.creds.Store(ctx, id, cred); err != nil {
				return fmt.Errorf("storing credential: %w", err)
			}

			app.cfg.AddAccount(account)
			if err := saveConfig(app); err != nil {
				return err
			}

			fmt.Printf("Stored credential for %s\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account address to authorize")
	return cmd
}
