package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"hive/internal/config"
	"hive/internal/oauth"
	"hive/internal/server"
	"hive/internal/token"
	"hive/internal/user"
	"hive/pkg/logging"
)

// serveConfigPath points at an optional YAML configuration file. Environment
// variables override whatever the file sets.
var serveConfigPath string

// serveCmd starts the platform server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hive platform server",
	Long: `Starts the platform HTTP server: the OIDC login handshake, the token
delivery endpoints for CLI and browser clients, and the authenticated API.

Configuration comes from environment variables (HIVE_*), optionally layered
over a YAML file given with --config. The server refuses to start with an
incomplete OIDC configuration unless OIDC is explicitly disabled.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a YAML configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}

	level := logging.LevelInfo
	if cfg.Debug || rootDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	db, err := sql.Open("sqlite", cfg.Persistence.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	users, err := user.NewStore(db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	basePath := "/api/v1"
	idp := oauth.NewIdentityClient(cfg.OIDC, cfg.Server.PublicURL+basePath+"/auth/callback")

	passcodes, err := newPasscodeStore(cfg, db)
	if err != nil {
		return err
	}

	authHandler := oauth.NewHandler(cfg, idp,
		oauth.NewStateStore(cfg.OIDC.PendingLoginTTL),
		oauth.NewTokenRegistry(cfg.OIDC.PendingTokenTTL),
		passcodes,
		basePath)

	var verifier *token.Verifier
	if !cfg.OIDC.Disabled {
		keys, err := token.NewKeyProvider(ctx, cfg.OIDC.JWKSURL)
		if err != nil {
			return fmt.Errorf("failed to initialize JWKS: %w", err)
		}
		verifier = token.NewVerifier(keys, cfg.OIDC.ClientID)
	}

	gate := server.NewGate(cfg, verifier, users)

	return server.New(cfg, authHandler, gate, users).Start(ctx)
}

func loadServeConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if serveConfigPath != "" {
		cfg, err = config.LoadFromFile(serveConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newPasscodeStore selects the persistent encrypted store when configured
// and the in-memory registry otherwise.
func newPasscodeStore(cfg *config.Config, db *sql.DB) (oauth.PasscodeStore, error) {
	if !cfg.Persistence.PersistPasscodes {
		return oauth.NewMemoryPasscodeStore(cfg.OIDC.PasscodeTTL), nil
	}

	key, err := cfg.Persistence.DecodedEncryptionKey()
	if err != nil {
		return nil, err
	}
	return oauth.NewSQLPasscodeStore(db, key, cfg.OIDC.PasscodeTTL)
}
