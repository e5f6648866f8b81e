package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mbelkin/courierdesk/internal/client/api"
	"github.com/mbelkin/courierdesk/internal/client/auth"
	"github.com/mbelkin/courierdesk/internal/client/config"
	"github.com/mbelkin/courierdesk/internal/client/session"
	"github.com/mbelkin/courierdesk/internal/logging"

	_ "modernc.org/sqlite"
)

// sessionManager is the authentication surface the CLI drives. The real
// auth.Manager satisfies it; tests can provide a lightweight stub.
type sessionManager interface {
	State() (auth.State, *session.User)
	Reconcile(ctx context.Context) error
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, req api.RegisterRequest) error
	Logout(ctx context.Context) error
	RefreshCurrentUser(ctx context.Context)
	CheckUsernameAvailable(ctx context.Context, name string) (bool, error)
}

// shipmentLister is the slice of the API client the shipments command needs.
type shipmentLister interface {
	Shipments(ctx context.Context) ([]api.Shipment, error)
}

type App struct {
	config    *config.Config
	auth      sessionManager
	shipments shipmentLister
	log       logging.Logger
	reader    *bufio.Reader
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	db, err := session.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	tokens := session.NewTokens(session.NewSQLiteStore(db))
	if err := tokens.Prime(ctx); err != nil {
		return nil, err
	}

	// The manager owns the sign-out hook but is built after the API client,
	// so the hook closes over the variable.
	var manager *auth.Manager
	apiClient := api.New(api.Config{
		BaseURL:  c.BaseURL,
		Timeout:  c.RequestTimeout,
		Recovery: api.StrategyFor(c.Recovery, c.FallbackCredential),
		OnAuthFailure: func(ctx context.Context) {
			manager.OnAuthFailure(ctx)
		},
		Logger: logger,
	}, tokens)
	manager = auth.NewManager(apiClient, tokens, c.SessionTTL, c.InactivityLimit, logger)

	return &App{
		config:    c,
		auth:      manager,
		shipments: apiClient,
		log:       logger,
		reader:    bufio.NewReader(os.Stdin),
	}, nil
}

// Run reconciles the cached session against the server, then hands control
// to the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	if err := a.auth.Reconcile(ctx); err != nil {
		a.log.Warn(ctx, "session reconciliation failed", "error", err)
	}
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(os.Stdin))
}

func (a *App) isLoggedIn() bool {
	state, _ := a.auth.State()
	return state == auth.StateAuthenticated || state == auth.StateChecking
}

func (a *App) getStatus() string {
	state, user := a.auth.State()
	if user != nil {
		return fmt.Sprintf("(%s %s)", user.Username, state)
	}
	return fmt.Sprintf("(%s)", state)
}
