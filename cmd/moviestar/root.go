package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alpyxn/moviestar/internal/catalog"
	"github.com/alpyxn/moviestar/internal/client"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/identity"
	"github.com/alpyxn/moviestar/pkg/logger"
)

var (
	errNotLoggedIn    = errors.New("not logged in: run `moviestar login` first")
	errSessionExpired = errors.New("session ended: run `moviestar login` to sign in again")
)

// provider is what the CLI needs from the identity provider.
type provider interface {
	identity.Refresher
	PasswordLogin(ctx context.Context, username, password string) (*identity.Credential, error)
}

// cli holds the state shared by every command of one process.
type cli struct {
	cfg      *config.Config
	logger   *logrus.Logger
	creds    *credentialStore
	provider provider

	credentialsPath string
	verbose         bool
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "moviestar",
		Short: "Terminal client for the MovieStar catalog",
		Long: `moviestar browses the MovieStar catalog from the terminal.

Sign in once with "moviestar login"; the credential is kept in your user
config directory and refreshed automatically while it is still valid.

Configuration comes from the same environment variables as the server
(API_BASE_URL, IDENTITY_ISSUER_URL, IDENTITY_CLIENT_ID, ...).`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.setup()
		},
	}

	root.PersistentFlags().StringVar(&c.credentialsPath, "credentials", "",
		"Credentials file (default: <user config dir>/moviestar/credentials.json)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newBrowseCmd(c),
		newWatchlistCmd(c),
	)
	return root
}

// setup loads configuration and builds the collaborators that were not
// injected.
func (c *cli) setup() error {
	if c.cfg == nil {
		if env := os.Getenv("GO_ENV"); env == "" || env == "development" {
			_ = godotenv.Load(".env.local")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		c.cfg = cfg
	}

	if c.logger == nil {
		level := c.cfg.Logging.Level
		if c.verbose {
			level = "debug"
		}
		c.logger = logger.New(level, "text", "stderr")
	}

	if c.creds == nil {
		path := c.credentialsPath
		if path == "" {
			var err error
			if path, err = defaultCredentialsPath(); err != nil {
				return err
			}
		}
		c.creds = &credentialStore{path: path}
	}

	if c.provider == nil {
		c.provider = &lazyProvider{cfg: &c.cfg.Identity, logger: c.logger}
	}
	return nil
}

// catalogClient builds the process-wide credential holder from the saved
// credential and the authenticated catalog client over it. Refreshed
// credentials are written back to disk.
func (c *cli) catalogClient(cmd *cobra.Command) (*identity.Session, *catalog.Client, error) {
	cred, err := c.creds.Load()
	if err != nil {
		return nil, nil, err
	}

	session := identity.NewSession(c.provider, cred, c.logger, identity.WithChangeHook(c.persist))
	api := client.NewBaseClient(c.cfg.API.BaseURL, c.cfg.API.Timeout, c.logger)
	gw := client.NewGateway(api, session,
		client.WithMinValidity(c.cfg.Identity.MinValidity),
		client.WithLoginRedirect(func(_ context.Context, cause error) {
			c.logger.WithError(cause).Debug("Login required")
			fmt.Fprintln(cmd.ErrOrStderr(), "Sign in with `moviestar login` to continue.")
		}),
	)
	return session, catalog.NewClient(gw, c.logger), nil
}

func (c *cli) persist(cred *identity.Credential) {
	if err := c.creds.Save(cred); err != nil {
		c.logger.WithError(err).Warn("Failed to save credentials")
	}
}

// describe turns gateway authentication failures into a next step for the user.
func describe(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, client.ErrSessionExpired):
		return errSessionExpired
	case client.IsAuthError(err):
		return errNotLoggedIn
	default:
		return err
	}
}

// lazyProvider discovers the identity provider on first use, so commands
// that never need it also work while it is unreachable.
type lazyProvider struct {
	cfg    *config.IdentityConfig
	logger *logrus.Logger

	once   sync.Once
	client *identity.Client
	err    error
}

func (p *lazyProvider) get(ctx context.Context) (*identity.Client, error) {
	p.once.Do(func() {
		p.client, p.err = identity.NewClient(ctx, p.cfg, p.logger)
	})
	return p.client, p.err
}

func (p *lazyProvider) PasswordLogin(ctx context.Context, username, password string) (*identity.Credential, error) {
	idp, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return idp.PasswordLogin(ctx, username, password)
}

func (p *lazyProvider) Refresh(ctx context.Context, refreshToken string) (*identity.Credential, error) {
	idp, err := p.get(ctx)
	if err != nil {
		return nil, err
	}
	return idp.Refresh(ctx, refreshToken)
}

func (p *lazyProvider) EndSession(ctx context.Context, cred *identity.Credential) error {
	idp, err := p.get(ctx)
	if err != nil {
		return err
	}
	return idp.EndSession(ctx, cred)
}
