package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaneholloman/zele-sub000/internal/mailapi"
)

func newThreadsCmd() *cobra.Command {
	var (
		account   string
		max       int64
		pageToken string
	)

	cmd := &cobra.Command{
		Use:   "threads [query]",
		Short: "List threads, served from the local cache where possible",
		Long: `List conversation threads for the configured accounts. The listing
itself always hits the server, but thread details are served from the local
cache whenever the server-side revision marker shows nothing changed.

The optional query uses the server's search syntax, e.g.:

  zele threads "in:inbox from:alice"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			var q string
			if len(args) == 1 {
				q = args[0]
			}

			emails, err := app.accountsFor(account)
			if err != nil {
				return err
			}

			for _, email := range emails {
				if len(emails) > 1 {
					fmt.Printf("== %s ==\n", email)
				}
				if err := listThreads(ctx, app, email, mailapi.ListParams{
					Query:     q,
					Max:       max,
					PageToken: pageToken,
				}); err != nil {
					return fmt.Errorf("listing threads for %s: %w", email, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account to list (default: all configured accounts)")
	cmd.Flags().Int64Var(&max, "max", 50, "maximum number of threads to list")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "resume listing from a previous page")
	return cmd
}

func listThreads(ctx context.Context, app *app, email string, params mailapi.ListParams) error {
	engine, _, err := app.engineFor(ctx, email)
	if err != nil {
		return err
	}

	result, err := engine.ListThreads(ctx, params)
	if err != nil {
		return err
	}

	for _, item := range result.Items {
		fmt.Println(formatThread(item))
	}
	if result.NextPageToken != "" {
		fmt.Printf("-- more: --page-token %s\n", result.NextPageToken)
	}
	return nil
}

func formatThread(item mailapi.ThreadListItem) string {
	var b strings.Builder
	if item.Unread {
		b.WriteString("* ")
	} else {
		b.WriteString("  ")
	}
	if item.Starred {
		b.WriteString("★ ")
	} else {
		b.WriteString("  ")
	}
	fmt.Fprintf(&b, "%s  %-30.30s  %s", item.Date.Format("2006-01-02 15:04"), item.From, item.Subject)
	if n := len(item.Messages); n > 1 {
		fmt.Fprintf(&b, " (%d)", n)
	}
	return b.String()
}
