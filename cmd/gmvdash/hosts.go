package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/views"
)

var hostListFlags struct {
	status string
	active string
	search string
}

type hostFlags struct {
	telegramID string
	username   string
	fullName   string
	email      string
	active     bool
	approved   bool
}

func (f *hostFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.telegramID, "telegram-id", "", "Telegram user ID")
	cmd.Flags().StringVar(&f.username, "username", "", "username, with or without @")
	cmd.Flags().StringVar(&f.fullName, "name", "", "full name")
	cmd.Flags().StringVar(&f.email, "email", "", "email address")
	cmd.Flags().BoolVar(&f.active, "active", true, "host may submit reports")
	cmd.Flags().BoolVar(&f.approved, "approved", true, "host is approved")
}

// input builds the host input. Flags not given on the command line keep
// their value from base.
func (f *hostFlags) input(cmd *cobra.Command, base apiclient.HostInput) apiclient.HostInput {
	in := base
	changed := cmd.Flags().Changed
	if changed("telegram-id") {
		in.TelegramUserID = strings.TrimSpace(f.telegramID)
	}
	if changed("username") {
		in.Username = strings.TrimPrefix(strings.TrimSpace(f.username), "@")
	}
	if changed("name") {
		in.FullName = strings.TrimSpace(f.fullName)
	}
	if changed("email") {
		in.Email = strings.TrimSpace(f.email)
	}
	if changed("active") {
		in.IsActive = f.active
	}
	if changed("approved") {
		in.IsApproved = f.approved
	}
	return in
}

var (
	createFlags hostFlags
	updateFlags hostFlags
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage live-stream hosts",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			f := views.ParseHostFilter(url.Values{
				"status": {hostListFlags.status},
				"active": {hostListFlags.active},
				"q":      {hostListFlags.search},
			})
			hosts, err := service.Load[[]apiclient.Host](ctx, a.svc, a.svc.Hosts(f.Params()))
			if err != nil {
				return err
			}
			hosts = views.FilterHosts(hosts, f.Search)

			rows := make([][]string, 0, len(hosts))
			for _, h := range hosts {
				state := styles.Success.Render("active")
				if !h.IsActive {
					state = styles.Muted.Render("inactive")
				}
				rows = append(rows, []string{
					strconv.FormatInt(h.ID, 10),
					h.FullName,
					"@" + h.Username,
					h.TelegramUserID,
					state,
					strconv.Itoa(h.Stats.TotalReports),
					views.FormatRupiah(h.Stats.TotalGMV),
				})
			}
			printTable(cmd.OutOrStdout(), "No hosts found.", []string{"ID", "Name", "Username", "Telegram", "State", "Reports", "GMV"}, rows)
			return nil
		})
	},
}

var hostsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a host",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			in := createFlags.input(cmd, apiclient.HostInput{IsActive: true, IsApproved: true})
			h, err := a.svc.CreateHost.Mutate(ctx, in)
			if err != nil {
				return errors.New(apiclient.Message(err))
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Host %s created with id %d", h.FullName, h.ID))
			return nil
		})
	},
}

var hostsUpdateCmd = &cobra.Command{
	Use:   "update <host-id>",
	Short: "Change a host's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "host")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			hosts, err := service.Load[[]apiclient.Host](ctx, a.svc, a.svc.Hosts(apiclient.HostParams{}))
			if err != nil {
				return err
			}
			var base *apiclient.Host
			for i := range hosts {
				if hosts[i].ID == id {
					base = &hosts[i]
					break
				}
			}
			if base == nil {
				return fmt.Errorf("host %d not found", id)
			}
			in := updateFlags.input(cmd, apiclient.HostInput{
				TelegramUserID: base.TelegramUserID,
				Username:       base.Username,
				FullName:       base.FullName,
				Email:          base.Email,
				IsActive:       base.IsActive,
				IsApproved:     base.IsApproved,
			})
			h, err := a.svc.UpdateHost.Mutate(ctx, service.HostUpdate{ID: id, Input: in})
			if err != nil {
				return errors.New(apiclient.Message(err))
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Host %s updated", h.FullName))
			return nil
		})
	},
}

var hostsDeleteCmd = &cobra.Command{
	Use:   "delete <host-id>",
	Short: "Delete a host and its reports",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "host")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			if _, err := a.svc.DeleteHost.Mutate(ctx, id); err != nil {
				return errors.New(apiclient.Message(err))
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Host %d deleted", id))
			return nil
		})
	},
}

var hostsToggleCmd = &cobra.Command{
	Use:   "toggle <host-id>",
	Short: "Activate or deactivate a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "host")
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.requireSession(ctx, apiclient.RoleManager); err != nil {
				return err
			}
			h, err := a.svc.ToggleHost.Mutate(ctx, id)
			if err != nil {
				return errors.New(apiclient.Message(err))
			}
			state := "deactivated"
			if h.IsActive {
				state = "activated"
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Host %s %s", h.FullName, state))
			return nil
		})
	},
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func init() {
	hostsListCmd.Flags().StringVar(&hostListFlags.status, "status", "all", "all, approved or pending")
	hostsListCmd.Flags().StringVar(&hostListFlags.active, "active", "all", "all, true or false")
	hostsListCmd.Flags().StringVarP(&hostListFlags.search, "search", "q", "", "match name, username or Telegram ID")
	createFlags.register(hostsCreateCmd)
	updateFlags.register(hostsUpdateCmd)

	hostsCmd.AddCommand(hostsListCmd, hostsCreateCmd, hostsUpdateCmd, hostsDeleteCmd, hostsToggleCmd)
	rootCmd.AddCommand(hostsCmd)
}
