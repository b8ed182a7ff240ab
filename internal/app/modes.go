package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kaikasekai/forecastd/internal/server"
)

// shutdownTimeout bounds the graceful HTTP shutdown on exit.
const shutdownTimeout = 15 * time.Second

// ServeMode runs the HTTP API. The feed, the proof gallery, and the initial
// subscription snapshot load concurrently in the background; each is best
// effort, and until the feed load succeeds the forecast endpoints report the
// feed as still loading.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	var g errgroup.Group
	g.Go(func() error {
		f, err := deps.FeedLoader.Load(ctx)
		if err != nil {
			a.logger.Error("feed load failed", slog.String("error", err.Error()))
			deps.Journal.Appendf("feed load failed: %v", err)
			return nil
		}
		deps.FeedStore.Set(f)
		return nil
	})
	g.Go(func() error {
		if err := deps.Gallery.Load(ctx); err != nil {
			a.logger.Warn("proof gallery load failed", slog.String("error", err.Error()))
			deps.Journal.Appendf("proof gallery load failed: %v", err)
		}
		return nil
	})
	if deps.Runner.HasSession() {
		g.Go(func() error {
			if _, err := deps.Runner.RefreshStatus(ctx); err != nil {
				a.logger.Warn("initial status refresh failed", slog.String("error", err.Error()))
				deps.Journal.Appendf("status refresh failed: %v", err)
			}
			return nil
		})
	}

	handler := &server.Handler{
		Feed:          deps.FeedStore,
		Runner:        deps.Runner,
		Reader:        deps.Gateway,
		Gallery:       deps.Gallery,
		Journal:       deps.Journal,
		Mail:          deps.Mail,
		TokenDecimals: a.cfg.Chain.TokenDecimals,
		Logger:        a.logger,
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handler, a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Background loads are bounded by their HTTP timeouts and abort on ctx
	// cancellation, so this wait cannot hang shutdown.
	_ = g.Wait()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// AccuracyMode loads the feed once, prints the accuracy metrics as JSON to
// stdout, and exits. It never dials the chain.
func (a *App) AccuracyMode(ctx context.Context, deps *Dependencies) error {
	f, err := deps.FeedLoader.Load(ctx)
	if err != nil {
		return fmt.Errorf("app: accuracy: %w", err)
	}

	out, err := json.MarshalIndent(map[string]any{
		"rows":      len(f.Rows),
		"metrics":   f.Metrics,
		"loaded_at": f.LoadedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("app: accuracy: marshal: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
