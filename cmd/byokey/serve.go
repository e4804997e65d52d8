package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AprilNEA/BYOKEY/internal/api"
	"github.com/AprilNEA/BYOKEY/internal/authmanager"
	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/config"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/dispatcher"
	"github.com/AprilNEA/BYOKEY/internal/executor"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
	"github.com/AprilNEA/BYOKEY/internal/oauth"
	"github.com/AprilNEA/BYOKEY/internal/registry"
	"github.com/AprilNEA/BYOKEY/internal/store"
	"github.com/AprilNEA/BYOKEY/internal/watcher"
)

// runServe wires every layer together — config, store, auth manager,
// executors, registry, dispatcher, HTTP server, config watcher — and
// blocks until SIGINT/SIGTERM, mirroring the teacher's service.go Run.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	storePath := fs.String("store", defaultStorePath(), "token store path")
	if err := fs.Parse(args); err != nil {
		return userErr("%v", err)
	}

	cfg, err := loadOrDefaultConfig(*configPath)
	if err != nil {
		return userErr("%v", err)
	}
	snap := config.NewSnapshot(cfg)

	if err := os.MkdirAll(filepath.Dir(*storePath), 0o700); err != nil {
		return userErr("store: %v", err)
	}
	tokenStore, err := store.OpenSQLite(*storePath)
	if err != nil {
		return userErr("store: %v", err)
	}
	defer tokenStore.Close()

	clk := clock.Real{}
	client, err := httpclient.New(httpclient.Options{ProxyURL: cfg.ProxyURL, Impersonate: cfg.TLS.Impersonate})
	if err != nil {
		return userErr("http client: %v", err)
	}

	auth := authmanager.New(tokenStore, clk, oauth.BuildRefreshers(buildEndpoints(), client, clk))
	executors := executor.BuildAll(client)
	reg := registry.Build(cfg, executor.AllSupportedModels())
	disp := dispatcher.New(snap, auth, executors, tokenStore, clk, reg)

	server := api.NewServer(snap, disp)

	var w *watcher.Watcher
	if _, statErr := os.Stat(*configPath); statErr == nil {
		w, err = watcher.New(*configPath, snap)
		if err != nil {
			log.Warnf("serve: config watcher disabled: %v", err)
		}
	}

	ctx, cancel := notifyContext(context.Background())
	defer cancel()

	if w != nil {
		go w.Run(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return bindErr(fmt.Errorf("serve: %w", err))
		}
		return nil
	case <-ctx.Done():
		log.Infof("serve: shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return userErr("serve: shutdown: %v", err)
		}
		if w != nil {
			_ = w.Close()
		}
		<-serveErr
		return nil
	}
}

func loadOrDefaultConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(errors.Unwrap(err)) {
		log.Infof("serve: no config file at %s, starting with defaults", path)
		return config.Default(), nil
	}
	return nil, err
}

// buildEndpoints layers environment-supplied client credentials for
// Gemini/Antigravity (redacted in the retrieved original source) and Kiro
// (never declared there) — see internal/oauth/endpoints.go's doc comment —
// over the compiled-in table.
func buildEndpoints() map[credential.ProviderId]oauth.Endpoints {
	endpoints := oauth.DefaultEndpoints()
	if id := os.Getenv("BYOKEY_GEMINI_CLIENT_ID"); id != "" {
		ep := endpoints[credential.Gemini]
		ep.ClientID = id
		endpoints[credential.Gemini] = ep
	}
	if id := os.Getenv("BYOKEY_ANTIGRAVITY_CLIENT_ID"); id != "" {
		ep := endpoints[credential.Antigravity]
		ep.ClientID = id
		endpoints[credential.Antigravity] = ep
	}
	if id := os.Getenv("BYOKEY_KIRO_CLIENT_ID"); id != "" {
		ep := endpoints[credential.Kiro]
		ep.ClientID = id
		endpoints[credential.Kiro] = ep
	}
	return endpoints
}
