package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"musiclocker-backend/config"
	"musiclocker-backend/handlers"
	"musiclocker-backend/locker"
	"musiclocker-backend/mp3parser"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  musiclocker run [config]              Start the locker")
		fmt.Println("  musiclocker cover <file.mp3> [out]    Save the embedded cover art")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		cfgPath := os.Getenv("LOCKER_CONFIG")
		if cfgPath == "" {
			cfgPath = "config.yaml"
		}
		if len(os.Args) > 2 {
			cfgPath = os.Args[2]
		}
		err = run(cfgPath)
	case "cover":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: musiclocker cover <file.mp3> [out]")
			os.Exit(1)
		}
		out := ""
		if len(os.Args) > 3 {
			out = os.Args[3]
		}
		err = saveCover(os.Args[2], out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "err", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	hot, err := config.NewHotConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := hot.Get()
	if cfg.Auth.Passphrase == config.DefaultPassphrase && cfg.Auth.PassphraseBcrypt == "" {
		slog.Warn("using the default passphrase, set auth.passphrase_bcrypt in " + cfgPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth := locker.NewAuthenticator(cfg.Auth)
	hot.OnReload(func(c *config.Config) {
		// only credentials and delays apply live; the listener keeps its port
		auth.Update(c.Auth)
	})
	if err := hot.Watch(ctx); err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	store := locker.NewStore(cfg.Session.TTL)
	go store.Cleanup(ctx, cfg.Session.CleanupInterval)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(cfg, handlers.NewLockerHandler(cfg, store, auth))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("music locker listening",
			"addr", srv.Addr,
			"origins", strings.Join(cfg.Server.AllowedOrigins, ","),
			"max_upload_mb", cfg.Server.MaxUploadMB)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server shut down cleanly")
	return nil
}

// saveCover writes the cover art of an MP3 next to it, or to out when given.
func saveCover(path, out string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cover, err := mp3parser.ExtractCoverArt(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + cover.Extension()
	}
	if err := os.WriteFile(out, cover.Data, 0o644); err != nil {
		return err
	}
	slog.Info("cover saved", "file", out, "type", cover.MIMEType, "bytes", len(cover.Data))
	return nil
}
