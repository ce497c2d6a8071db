package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/views"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Review pending registrations",
}

var usersPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List users waiting for approval",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			users, err := service.Load[[]apiclient.PendingUser](ctx, a.svc, a.svc.PendingUsers())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{
					fmt.Sprint(u.ID),
					u.FullName,
					"@" + u.Username,
					u.TelegramUserID,
					string(u.Role),
					views.FormatDateTime(u.CreatedAt.Local()),
				})
			}
			printTable(cmd.OutOrStdout(), "No users waiting for approval.", []string{"ID", "Name", "Username", "Telegram", "Role", "Registered"}, rows)
			return nil
		})
	},
}

func decisionCmd(use, short, done string, pick func(*service.Service) func(context.Context, int64) (struct{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
					return err
				}
				if _, err := pick(a.svc)(ctx, id); err != nil {
					return errors.New(apiclient.Message(err))
				}
				printSuccess(cmd.OutOrStdout(), fmt.Sprintf("User %d %s", id, done))
				return nil
			})
		},
	}
}

func init() {
	usersCmd.AddCommand(
		usersPendingCmd,
		decisionCmd("approve", "Approve a pending user", "approved", func(s *service.Service) func(context.Context, int64) (struct{}, error) {
			return s.ApproveUser.Mutate
		}),
		decisionCmd("reject", "Reject a pending user", "rejected", func(s *service.Service) func(context.Context, int64) (struct{}, error) {
			return s.RejectUser.Mutate
		}),
	)
	rootCmd.AddCommand(usersCmd)
}
