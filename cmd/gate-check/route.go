package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignite/outreach-core/internal/app"
	"github.com/ignite/outreach-core/internal/domain"
)

func routeCmd(withApp runFunc) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "route <contact-id>",
		Short: "Show which persona a contact is routed to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := domain.Channel(channel)
			if !ch.Valid() {
				return fmt.Errorf("invalid channel %q", channel)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				c, err := a.Contacts.GetContact(ctx, args[0])
				if err != nil {
					return err
				}
				entry := a.Router.Route(c, ch)
				p, err := a.Router.Registry().Get(entry.WorkerID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Contact:  %s (stage=%q, tags=%v)\n", c.ID, c.Stage, c.Tags)
				fmt.Fprintf(out, "Persona:  %s - %s [%s]\n", p.ID, p.Name, p.Role)
				fmt.Fprintf(out, "From:     %s\n", p.FromIdentity(ch))
				fmt.Fprintf(out, "Queue:    %s (priority %d)\n", entry.Queue, entry.Priority)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", string(domain.ChannelSMS), "channel to route on")
	return cmd
}
