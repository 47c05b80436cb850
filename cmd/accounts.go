package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaneholloman/zele-sub000/internal/config"
)

func newAccountsCmd() *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts and their credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			if len(app.cfg.Accounts) == 0 {
				fmt.Println("No accounts configured; run 'zele auth' to add one.")
				return nil
			}

			stored, err := app.db.ListAccounts(ctx)
			if err != nil {
				return err
			}
			hasCred := make(map[string]bool, len(stored))
			for _, id := range stored {
				hasCred[id.String()] = true
			}

			for _, acc := range app.cfg.Accounts {
				status := "not authorized"
				if hasCred[app.cfg.Identity(acc.Email).String()] {
					status = "authorized"
					if verify {
						status = verifyAccount(ctx, app, acc.Email)
					}
				}
				fmt.Printf("%-40s %s\n", acc.Email, status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "check each credential against the remote profile")
	return cmd
}

// verifyAccount confirms the stored credential belongs to the configured
// address by fetching the remote profile.
func verifyAccount(ctx context.Context, app *app, email string) string {
	engine, _, err := app.engineFor(ctx, email)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	profile, err := engine.Profile(ctx)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	if !strings.EqualFold(profile.Email, email) {
		return fmt.Sprintf("credential belongs to %s", profile.Email)
	}
	return fmt.Sprintf("verified (%d messages)", profile.MessagesTotal)
}

func saveConfig(app *app) error {
	if err := config.Save(app.cfgPath, app.cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}
