package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	waerrors "github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/pkg/client"
)

func groupCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
		Long: `Inspect and manage groups using the saved login.

A group is given by its id (120363001) or its full JID (120363001@g.us).
Participants are phone numbers or JIDs.

Examples:
  waweb group info 120363001
  waweb group create "Weekend" +40712345678 +40787654321
  waweb group add 120363001 +40711111111
  waweb group leave 120363001`,
	}
	cmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", time.Minute, "overall time limit")

	// withGroups validates group, connects and runs fn.
	withGroups := func(cmd *cobra.Command, group string, fn func(ctx context.Context, c *client.Client) error) error {
		if group != "" {
			if _, err := client.ParseGroup(group); err != nil {
				return waerrors.Classify(err, "W401")
			}
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		s, err := a.openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := a.connectAuthenticated(ctx, s, timeout); err != nil {
			return err
		}
		if err := fn(ctx, s.client); err != nil {
			return waerrors.Classify(err, "W400")
		}
		return nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "info <group>",
			Short: "Print group subject, owner and members",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGroups(cmd, args[0], func(ctx context.Context, c *client.Client) error {
					info, err := c.GroupMetadata(ctx, args[0])
					if err != nil {
						return err
					}
					a.printGroup(info)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "create <subject> <participant>...",
			Short: "Create a group",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGroups(cmd, "", func(ctx context.Context, c *client.Client) error {
					info, err := c.CreateGroup(ctx, args[0], args[1:])
					if err != nil {
						return err
					}
					a.success("Created group %s", info.JID)
					a.printGroup(info)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "add <group> <participant>...",
			Short: "Add members to a group",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGroups(cmd, args[0], func(ctx context.Context, c *client.Client) error {
					if err := c.AddParticipants(ctx, args[0], args[1:]); err != nil {
						return err
					}
					a.success("Added %d member(s) to %s", len(args)-1, args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove <group> <participant>...",
			Short: "Remove members from a group",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGroups(cmd, args[0], func(ctx context.Context, c *client.Client) error {
					if err := c.RemoveParticipants(ctx, args[0], args[1:]); err != nil {
						return err
					}
					a.success("Removed %d member(s) from %s", len(args)-1, args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "leave <group>",
			Short: "Leave a group",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withGroups(cmd, args[0], func(ctx context.Context, c *client.Client) error {
					if err := c.LeaveGroup(ctx, args[0]); err != nil {
						return err
					}
					a.success("Left %s", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

func (a *app) printGroup(info *client.GroupInfo) {
	fmt.Fprintf(a.out, "  Group:    %s\n", info.JID)
	fmt.Fprintf(a.out, "  Subject:  %s\n", info.Subject)
	if info.Owner.User != "" {
		fmt.Fprintf(a.out, "  Owner:    %s\n", info.Owner)
	}
	if !info.Created.IsZero() {
		fmt.Fprintf(a.out, "  Created:  %s\n", info.Created.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(a.out, "  Members:  %d\n", len(info.Participants))
	for _, p := range info.Participants {
		role := ""
		if p.Admin {
			role = " (admin)"
		}
		fmt.Fprintf(a.out, "    %s%s\n", p.JID, role)
	}
}
