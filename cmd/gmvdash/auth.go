package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/config"
	"github.com/gmvreport/gmvdash/internal/session"
)

var loginValues map[string]string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session token",
	Long: `Sign in against the reporting API. Fields missing from --field are
prompted for; secret fields are read without echo. The token is stored where
the session store is configured, so a running server picks it up.`,
	Example: `  gmvdash login --field email=rina@example.com
  gmvdash login -f email=rina@example.com -f password=secret1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			creds, err := readCredentials(a.cfg.Auth.LoginFields, loginValues, os.Stdin, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			res := a.guard.Login(ctx, creds)
			if !res.Success {
				return errors.New(res.Message)
			}
			printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Logged in as %s (%s)", res.User.FullName, res.User.Role))
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.guard.Logout(ctx); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), "Logged out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			sess, err := a.requireSession(ctx)
			if err != nil {
				return err
			}
			expires := "unknown"
			if exp, ok := session.Expiry(sess.Token); ok {
				expires = exp.Local().Format(time.RFC1123)
			}
			printFields(cmd.OutOrStdout(), sess.User.FullName, [][2]string{
				{"Username", "@" + sess.User.Username},
				{"Email", sess.User.Email},
				{"Role", string(sess.User.Role)},
				{"Expires", expires},
			})
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringToStringVarP(&loginValues, "field", "f", nil, "login field as name=value (repeatable)")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

// readCredentials fills every configured field from values, prompting on
// errOut for the rest.
func readCredentials(fields []config.LoginField, values map[string]string, in *os.File, errOut io.Writer) (apiclient.Credentials, error) {
	creds := apiclient.Credentials{}
	reader := bufio.NewReader(in)
	for _, f := range fields {
		if v, ok := values[f.Name]; ok {
			creds[f.Name] = v
			continue
		}
		label := f.Label
		if label == "" {
			label = f.Name
		}
		fmt.Fprintf(errOut, "%s: ", label)

		if f.Secret && term.IsTerminal(in.Fd()) {
			b, err := term.ReadPassword(in.Fd())
			fmt.Fprintln(errOut)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", f.Name, err)
			}
			creds[f.Name] = string(b)
			continue
		}
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		creds[f.Name] = strings.TrimRight(line, "\r\n")
	}
	return creds, nil
}
