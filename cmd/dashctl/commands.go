package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/iliyamo/nurox-dashboard/internal/client"
	"github.com/iliyamo/nurox-dashboard/internal/guard"
	"github.com/iliyamo/nurox-dashboard/internal/notify"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
	"github.com/iliyamo/nurox-dashboard/internal/session"
)

func loginCmd(v *viper.Viper) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()
			if password == "" {
				password = os.Getenv("DASHCTL_PASSWORD")
			}
			if password == "" {
				if password, err = readPassword(cmd); err != nil {
					return err
				}
			}

			err = a.store.Login(cmd.Context(), email, password)
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.RequiresMobileApp {
				return fmt.Errorf("%s", guard.MobileAppNotice(apiErr.Role))
			}
			if err != nil {
				return err
			}
			u := a.store.Snapshot().User
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", u.Email, u.Role)
			if u.DefaultRoute != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Dashboard: %s\n", guard.DashboardPath(*u.DefaultRoute))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 1024))
		return strings.TrimRight(string(b), "\r\n"), err
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	return string(b), err
}

func logoutCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.hydrate(cmd.Context()); err != nil {
				return err
			}
			if err := a.store.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.hydrate(cmd.Context()); err != nil {
				return err
			}
			snap := a.store.Snapshot()
			if !snap.Authenticated {
				return session.ErrNotAuthenticated
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap.User)
			}
			u := snap.User
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", u.Name, u.Email)
			fmt.Fprintf(out, "Role:     %s\n", u.Role)
			if u.Organization != nil {
				fmt.Fprintf(out, "Org:      %s (%s)\n", u.Organization.Name, u.Organization.Kind)
			}
			if !snap.Verified {
				fmt.Fprintln(out, "Status:   unverified (server unreachable)")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the identity as JSON")
	return cmd
}

func openCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Open a dashboard path through the route guard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.hydrate(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			path := "/" + strings.TrimPrefix(args[0], "/")

			d, err := guard.Enforce(cmd.Context(), a.store, path)
			if err != nil {
				return err
			}
			switch d.Action {
			case guard.RedirectLogin:
				fmt.Fprintf(out, "Not signed in, redirecting to %s\n", d.Target)
				return nil
			case guard.ForceLogout:
				fmt.Fprintln(out, d.Notice)
				select {
				case <-time.After(d.Delay):
				case <-cmd.Context().Done():
				}
				fmt.Fprintf(out, "Redirecting to %s\n", d.Target)
				return nil
			case guard.RedirectRole:
				fmt.Fprintf(out, "Redirecting to %s\n", d.Target)
				path = d.Target
			case guard.Loading:
				return errors.New("session is still loading")
			}
			return a.render(cmd, path)
		},
	}
}

// render fetches the page behind the server gate and the dashboard data.
func (a *app) render(cmd *cobra.Command, path string) error {
	out := cmd.OutOrStdout()
	resp, err := a.http.Get(a.siteURL + path)
	if err != nil {
		return fmt.Errorf("%w: %w", client.ErrNetworkUnavailable, err)
	}
	resp.Body.Close()
	if resp.Request != nil && resp.Request.URL.Path != path {
		// the gate redirected
		notice := resp.Request.URL.Query().Get("notice")
		fmt.Fprintf(out, "Server redirected to %s", resp.Request.URL.Path)
		if notice != "" {
			fmt.Fprintf(out, " (%s)", notice)
		}
		fmt.Fprintln(out)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open %s: %s", path, resp.Status)
	}

	segment, ok := guard.SegmentFromPath(path)
	if !ok || len(roles.RolesForRoute(segment)) == 0 {
		// shared pages have no dashboard data of their own
		fmt.Fprintf(out, "%s\n", path)
		return nil
	}
	var data json.RawMessage
	err = a.store.Call(cmd.Context(), func(ctx context.Context, access string) error {
		return a.api.Get(ctx, "/dashboard/"+url.PathEscape(segment), access, &data)
	})
	if errors.Is(err, session.ErrExpired) {
		fmt.Fprintf(out, "Session expired, redirecting to %s\n", guard.LoginPath)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n%s\n", path, data)
	return nil
}

func watchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(v)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			events := make(chan notify.Event, 16)
			a.channel.OnEvent = func(ev notify.Event) {
				select {
				case events <- ev:
				default:
				}
			}
			defer a.close()
			if err := a.hydrate(cmd.Context()); err != nil {
				return err
			}
			snap := a.store.Snapshot()
			if !snap.Authenticated {
				return session.ErrNotAuthenticated
			}
			if !a.channel.Connected() {
				return errors.New("notification channel is not connected")
			}
			for {
				select {
				case ev := <-events:
					switch ev.Type {
					case notify.TypePong, notify.TypeConnected:
					default:
						fmt.Fprintf(out, "[%s] %s: %s\n", ev.Timestamp.Format(time.Kitchen), ev.Title, ev.Message)
					}
				case <-a.expired:
					return session.ErrExpired
				case <-cmd.Context().Done():
					return nil
				}
			}
		},
	}
}
