package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-sso-client/endpoint"
	"github.com/jrsteele09/go-sso-client/internal/config"
	"github.com/jrsteele09/go-sso-client/keycloak"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/securestore"
	"github.com/jrsteele09/go-sso-client/securestore/filestore"
	"github.com/jrsteele09/go-sso-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
)

var openBrowser = open.Run

// app holds what every subcommand needs. It is built once the root
// command's flags and environment have been read.
type app struct {
	config  config.Config
	session *session.Session
	login   session.InteractiveLogin
	out     io.Writer
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{out: out}
	var envDir string

	rootCmd := &cobra.Command{
		Use:   "ssoctl",
		Short: "Sign in to a Keycloak realm and manage the stored credentials",
		Long: `ssoctl runs the OpenID Connect authorization code flow against a
Keycloak realm, keeps the resulting credentials in a local secure store and
refreshes them on demand.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envDir); err != nil {
				return fmt.Errorf("loading .env: %w", err)
			}
			a.config = config.New()
			setupLogger(a.config.GetLogLevel())

			sess, err := newSession(cmd, a.config)
			if err != nil {
				return err
			}
			a.session = sess
			a.login = browserLogin(in, out, openBrowser)
			return nil
		},
	}

	wd, _ := os.Getwd()
	rootCmd.PersistentFlags().StringVar(&envDir, "env-dir", wd, "directory containing an optional .env file")

	rootCmd.AddCommand(
		newLoginCmd(a),
		newStatusCmd(a),
		newTokenCmd(a),
		newRefreshCmd(a),
		newLogoutCmd(a),
	)
	return rootCmd
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func newSession(cmd *cobra.Command, c config.Config) (*session.Session, error) {
	ep := endpoint.New(c.GetRealm(), c.GetClientID(), c.GetRedirectURI(), c.GetBaseURL(),
		endpoint.WithResponseType(oauth2.ResponseType(c.GetResponseType())),
		endpoint.WithIdpHint(c.GetIdpHint()),
	)
	if err := ep.Validate(); err != nil {
		return nil, fmt.Errorf("endpoint configuration: %w", err)
	}

	secure, err := newSecureStore(c)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: c.GetHTTPTimeout()}
	options := []keycloak.Option{keycloak.WithHTTPClient(httpClient)}
	if c.GetVerifyIDToken() {
		options = append(options, keycloak.WithIDTokenVerifier(keycloak.NewVerifier(cmd.Context(), ep, httpClient)))
	}

	return session.New(ep, keycloak.New(ep, options...), secure, session.WithLogger(log.Logger))
}

func newSecureStore(c config.StoreConfig) (securestore.SecureStore, error) {
	var options []filestore.Option
	if hexKey := c.GetStoreKey(); hexKey != "" {
		key, err := filestore.ParseKey(hexKey)
		if err != nil {
			return nil, fmt.Errorf("store key: %w", err)
		}
		options = append(options, filestore.WithSealingKey(key))
	}
	store, err := filestore.New(c.GetStoreDir(), options...)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}
	return store, nil
}

func displayAppname(out io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(out, myFigure.String())
}
