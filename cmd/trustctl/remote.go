package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/and161185/visitguard/internal/api"
)

func notifyCmd(g *globals) *cobra.Command {
	var req api.NotifyRequest
	var data []string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a notification through the server pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := parseData(data)
			if err != nil {
				return err
			}
			req.Data = d
			cc, c, err := g.dial()
			if err != nil {
				return err
			}
			defer cc.Close()
			ctx, cancel := withTimeout()
			defer cancel()

			out, err := c.Notify(ctx, &req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&req.SubjectKey, "subject", "", "subject key, usually the host id")
	cmd.Flags().StringVar(&req.EventType, "event", "", "host_alert | visitor_confirmation | checkout_alert")
	cmd.Flags().StringVar(&req.ChannelType, "channel", "email", "sms | email | slack | teams")
	cmd.Flags().StringVar(&req.VisitID, "visit", "", "visit id for the per-visit cap")
	cmd.Flags().StringVar(&req.TemplateID, "template", "", "template id (default for event/channel when empty)")
	cmd.Flags().StringArrayVarP(&data, "data", "d", nil, "template value as key.path=value (repeatable)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func webhooksCmd(g *globals) *cobra.Command {
	root := &cobra.Command{Use: "webhooks", Short: "Manage outbound webhooks"}

	var w api.Webhook
	var retry api.Retry
	add := &cobra.Command{
		Use:   "add ID URL",
		Short: "Register or replace a webhook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w.ID, w.URL = args[0], args[1]
			if cmd.Flags().Changed("max-retries") || cmd.Flags().Changed("backoff") || cmd.Flags().Changed("initial-delay-ms") {
				w.Retry = &retry
			}
			cc, c, err := g.dial()
			if err != nil {
				return err
			}
			defer cc.Close()
			ctx, cancel := withTimeout()
			defer cancel()
			if _, err := c.RegisterWebhook(ctx, &api.RegisterWebhookRequest{Webhook: w}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", w.ID)
			return nil
		},
	}
	add.Flags().StringVar(&w.Secret, "secret", "", "signing secret")
	add.Flags().StringSliceVar(&w.Events, "events", []string{"*"}, "subscribed event types")
	add.Flags().BoolVar(&w.Active, "active", true, "deliver to this webhook")
	add.Flags().IntVar(&retry.MaxRetries, "max-retries", 3, "retries after the first attempt")
	add.Flags().Float64Var(&retry.BackoffMultiplier, "backoff", 2, "backoff multiplier")
	add.Flags().IntVar(&retry.InitialDelayMs, "initial-delay-ms", 1000, "first retry delay")
	_ = add.MarkFlagRequired("secret")

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, c, err := g.dial()
			if err != nil {
				return err
			}
			defer cc.Close()
			ctx, cancel := withTimeout()
			defer cancel()
			out, err := c.ListWebhooks(ctx, &api.Empty{})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out.Webhooks)
		},
	}

	test := &cobra.Command{
		Use:   "test ID",
		Short: "Send a signed test event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, c, err := g.dial()
			if err != nil {
				return err
			}
			defer cc.Close()
			ctx, cancel := withTimeout()
			defer cancel()
			out, err := c.TestWebhook(ctx, &api.WebhookRef{ID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	rm := &cobra.Command{
		Use:   "rm ID",
		Short: "Unregister a webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, c, err := g.dial()
			if err != nil {
				return err
			}
			defer cc.Close()
			ctx, cancel := withTimeout()
			defer cancel()
			if _, err := c.UnregisterWebhook(ctx, &api.WebhookRef{ID: args[0]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}

	root.AddCommand(add, list, test, rm)
	return root
}

func limitsCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "limits",
		Short: "Show notification rate limit counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, c, err := g.dial()
			if err != nil {
				return err
			}
			defer cc.Close()
			ctx, cancel := withTimeout()
			defer cancel()
			out, err := c.CurrentLimits(ctx, &api.Empty{})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out.Limits)
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear every rate limit counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, c, err := g.dial()
			if err != nil {
				return err
			}
			defer cc.Close()
			ctx, cancel := withTimeout()
			defer cancel()
			if _, err := c.ResetLimits(ctx, &api.Empty{}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "limits reset")
			return nil
		},
	})
	return root
}
