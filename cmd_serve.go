package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"batchqc/internal/auth"
	"batchqc/internal/config"
	"batchqc/internal/seed"
	"batchqc/internal/server"
	"batchqc/internal/websocket"
)

const (
	shutdownGrace = 10 * time.Second
	sweepInterval = 5 * time.Minute

	// defaultEmployeePassword is used when no users are configured and
	// BATCHQC_EMPLOYEE_PASSWORD is unset.
	defaultEmployeePassword = "changeme"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (overrides server.addr)")
}

// credentials returns the configured accounts, or a single "employee"
// account whose password comes from the environment.
func credentials(cfg config.Config, log zerolog.Logger) ([]auth.Credential, error) {
	creds := make([]auth.Credential, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		creds = append(creds, auth.Credential{Username: u.Username, PasswordHash: u.PasswordHash, Role: u.Role})
	}
	if len(creds) > 0 {
		return creds, nil
	}

	password, ok := os.LookupEnv("BATCHQC_EMPLOYEE_PASSWORD")
	if !ok || password == "" {
		password = defaultEmployeePassword
		log.Warn().Msg("no users configured, using account \"employee\" with the default password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	return []auth.Credential{{Username: "employee", PasswordHash: hash, Role: auth.RoleEmployee}}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Storage.Seed {
		batches, err := seed.Default()
		if err != nil {
			return err
		}
		added, err := seed.Apply(ctx, st, batches)
		if err != nil {
			return err
		}
		log.Info().Int("added", added).Msg("fixtures applied")
	}

	proxies, err := cfg.Server.Proxies()
	if err != nil {
		return err
	}
	loc, err := cfg.Export.Location()
	if err != nil {
		return err
	}

	creds, err := credentials(cfg, log)
	if err != nil {
		return err
	}
	verifier, err := auth.NewStaticVerifier(creds)
	if err != nil {
		return err
	}

	app := &server.App{
		Store:              st,
		Hub:                websocket.NewHub(log),
		Sessions:           auth.NewSessions(cfg.Server.SessionTTL, cfg.Server.IdleTimeout, time.Now),
		Verifier:           verifier,
		Lockout:            auth.NewLockout(time.Now),
		Limiter:            server.NewRateLimiter(time.Now),
		Log:                log,
		SecureCookies:      cfg.Server.SecureCookies,
		TrustedProxies:     proxies,
		ControllerFallback: cfg.Export.ControllerFallback,
		Location:           loc,
		Now:                time.Now,
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("driver", cfg.Storage.Driver).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := app.Sessions.Sweep(); n > 0 {
					log.Debug().Int("removed", n).Msg("expired sessions swept")
				}
			}
		}
	})
	return g.Wait()
}
