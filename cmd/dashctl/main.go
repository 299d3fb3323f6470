// Command dashctl is a terminal client for the dashboard.  It keeps a
// persisted session the same way the web dashboard does and applies the
// same route guard before opening a dashboard path.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iliyamo/nurox-dashboard/internal/client"
	"github.com/iliyamo/nurox-dashboard/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "dashctl",
		Short:         "Nurox dashboard command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.PersistentFlags()
	f.String("api-url", "http://localhost:8080/api", "API root")
	f.String("session-file", defaultSessionFile(), "Where the session is persisted")
	f.Duration("timeout", client.DefaultTimeout, "Per-request timeout")
	f.Bool("verbose", false, "Log session activity to stderr")
	_ = v.BindPFlag("api_url", f.Lookup("api-url"))
	_ = v.BindPFlag("session_file", f.Lookup("session-file"))
	_ = v.BindPFlag("timeout", f.Lookup("timeout"))
	_ = v.BindPFlag("verbose", f.Lookup("verbose"))
	v.SetEnvPrefix("DASHCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(loginCmd(v), logoutCmd(v), whoamiCmd(v), openCmd(v), watchCmd(v))
	return cmd
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "nurox", "session.json")
}

// app is one invocation's wiring of client, cookies, channel and store.
type app struct {
	api     *client.Client
	channel *client.NotificationChannel
	cookies *client.JarCookies
	http    *http.Client
	siteURL string
	store   *session.Store
	log     zerolog.Logger
	expired chan struct{}
}

type settings struct {
	APIURL      string        `mapstructure:"api_url"`
	SessionFile string        `mapstructure:"session_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Verbose     bool          `mapstructure:"verbose"`
}

func newApp(v *viper.Viper) (*app, error) {
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	log := zerolog.Nop()
	if s.Verbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Jar: jar, Timeout: s.Timeout}
	api, err := client.New(s.APIURL, client.WithHTTPClient(hc))
	if err != nil {
		return nil, err
	}
	site := strings.TrimSuffix(api.BaseURL(), "/api")
	cookies, err := client.NewJarCookies(jar, site)
	if err != nil {
		return nil, err
	}
	channel, err := client.NewNotificationChannel(api.BaseURL(), log)
	if err != nil {
		return nil, err
	}

	a := &app{
		api:     api,
		channel: channel,
		cookies: cookies,
		http:    hc,
		siteURL: site,
		log:     log,
		expired: make(chan struct{}, 1),
	}
	a.store, err = session.New(session.Options{
		API:      api,
		KV:       session.NewFileKV(s.SessionFile),
		Notifier: channel,
		Cookies:  cookies,
		Logger:   log,
		Timeout:  s.Timeout,
		OnExpired: func() {
			select {
			case a.expired <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// hydrate restores the persisted session and waits for the server to
// confirm it.
func (a *app) hydrate(ctx context.Context) error {
	select {
	case <-a.store.Hydrate(ctx):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drops the live connection.  The persisted session stays.
func (a *app) close() { a.channel.Disconnect() }
