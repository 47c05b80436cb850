package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaneholloman/zele-sub000/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		account     string
		label       string
		queryExpr   string
		interval    time.Duration
		once        bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch an account's change feed for new mail",
		Long: `Watch polls the server's change feed and prints newly arrived
messages. The first run anchors to the server's current position, so only
mail arriving after the watch started is reported; the anchor is persisted
and later runs resume where the previous one stopped.

An optional query filters the reported messages client-side:

  zele watch --account alice@example.com --query "from:boss -subject:fyi"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			emails, err := app.accountsFor(account)
			if err != nil {
				return err
			}
			if len(emails) != 1 {
				return fmt.Errorf("watch follows one account; pick one with --account")
			}
			email := emails[0]

			if metricsAddr != "" {
				go serveMetrics(app, metricsAddr)
			}

			engine, remote, err := app.engineFor(ctx, email)
			if err != nil {
				return err
			}

			labelID := ""
			if label != "" {
				labelID, err = engine.ResolveLabel(ctx, label)
				if err != nil {
					return fmt.Errorf("resolving label %q: %w", label, err)
				}
			}

			if interval <= 0 {
				interval = app.cfg.WatchInterval()
			}

			w := watch.New(watch.Config{
				Identity: app.cfg.Identity(email),
				Engine:   engine,
				Remote:   remote,
				DB:       app.db,
				LabelID:  labelID,
				Query:    queryExpr,
				Interval: interval,
				Once:     once,
				Metrics:  app.metrics,
				Logger:   app.logger,
			})
			defer w.Cancel()

			for {
				msg, err := w.Next(ctx)
				if errors.Is(err, io.EOF) || errors.Is(err, watch.ErrCancelled) || errors.Is(err, context.Canceled) {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Printf("%s  %-30.30s  %s\n", msg.Date.Format("15:04:05"), msg.From, msg.Subject)
			}
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account to watch")
	cmd.Flags().StringVar(&label, "label", "", "folder/label to watch (default: whole mailbox)")
	cmd.Flags().StringVar(&queryExpr, "query", "", "filter reported messages with a search expression")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between polls (default from config)")
	cmd.Flags().BoolVar(&once, "once", false, "poll once and exit instead of watching continuously")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func serveMetrics(app *app, addr string) {
	handler := app.provider.PrometheusHandler()
	if handler == nil {
		app.logger.Warn("metrics exporter is not prometheus; --metrics-addr ignored")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	app.logger.Info("serving metrics", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		app.logger.Error("metrics server failed", slog.Any("error", err))
	}
}
