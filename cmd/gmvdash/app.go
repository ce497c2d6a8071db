package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/config"
	"github.com/gmvreport/gmvdash/internal/crypto"
	"github.com/gmvreport/gmvdash/internal/metrics"
	"github.com/gmvreport/gmvdash/internal/query"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/session"
	"github.com/gmvreport/gmvdash/internal/validate"
)

// app is the wiring shared by serve and the CLI commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	schema *validate.Schema
	store  session.TokenStore
	guard  *session.Guard
	api    *apiclient.Client
	qc     *query.Client
	svc    *service.Service

	closers []func()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(cfg *config.Config, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStore(ctx context.Context, cfg config.SessionConfig) (session.TokenStore, func(), error) {
	cipher, err := crypto.NewCipher(cfg.TokenKey)
	if err != nil {
		return nil, nil, fmt.Errorf("token key: %w", err)
	}
	switch cfg.Store {
	case "redis":
		rs, err := session.OpenRedisStore(ctx, cfg.RedisAddr, cfg.RedisKey, cipher)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	default:
		return session.NewFileStore(cfg.TokenFile, cipher), func() {}, nil
	}
}

// newApp loads the config and wires the API client, cache and session.
// m may be nil; the CLI does not export metrics.
func newApp(ctx context.Context, m *metrics.Metrics, serverLogs bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, serverLogs)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		schema:  validate.NewSchema(cfg.Auth.LoginFields),
		store:   store,
		closers: []func(){closeStore},
	}

	clientOpts := []apiclient.Option{apiclient.WithTimeout(cfg.API.Timeout)}
	if m != nil {
		clientOpts = append(clientOpts, apiclient.WithObserver(m))
	}
	a.api, err = apiclient.New(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		a.close()
		return nil, err
	}

	guardOpts := []session.GuardOption{session.WithSchema(a.schema), session.WithLogger(logger)}
	queryOpts := []query.ClientOption{
		query.WithLogger(logger),
		query.WithDefaults(query.Options{
			StaleTime:  cfg.Queries.StaleTime,
			Retry:      retryOption(cfg.Queries.Retry),
			RetryDelay: cfg.Queries.RetryDelay,
		}),
	}
	if cfg.Queries.GCTime > 0 {
		queryOpts = append(queryOpts, query.WithGCTime(cfg.Queries.GCTime))
	}
	var svcOpts []service.Option
	if m != nil {
		guardOpts = append(guardOpts, session.WithRecorder(m))
		queryOpts = append(queryOpts, query.WithRecorder(m))
		svcOpts = append(svcOpts, service.WithMutationRecorder(m))
	}

	a.guard = session.NewGuard(store, apiclient.NewAuth(a.api), guardOpts...)
	a.api.SetTokenSource(a.guard)
	a.api.SetUnauthorizedHandler(a.guard.Expire)

	a.qc = query.New(queryOpts...)
	a.svc = service.New(a.api, a.qc, cfg.Queries, svcOpts...)
	a.closers = append(a.closers, a.svc.ClearOnSignOut(a.guard), a.qc.Close)
	if m != nil {
		m.RegisterCacheCollector(a.qc.Len)
	}
	return a, nil
}

func retryOption(n int) int {
	if n == 0 {
		return query.NoRetry
	}
	return n
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// requireSession restores the stored token and verifies it for CLI
// commands. roles limits who may run the command.
func (a *app) requireSession(ctx context.Context, roles ...apiclient.Role) (session.Session, error) {
	if err := a.guard.Init(ctx); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return session.Session{}, errors.New("session expired; run `gmvdash login` again")
		}
		return session.Session{}, err
	}
	switch a.guard.Authorize(roles...) {
	case session.Allow:
		sess, _ := a.guard.Session()
		return sess, nil
	default:
		if _, ok := a.guard.Session(); ok {
			return session.Session{}, fmt.Errorf("this command needs the %s role", joinRoles(roles))
		}
		return session.Session{}, fmt.Errorf("not logged in; run `gmvdash login` first")
	}
}

func joinRoles(roles []apiclient.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}

// withApp runs fn with a wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, nil, false)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
