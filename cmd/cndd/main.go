// Command cndd is the cross-ledger atomic swap daemon: it loads its
// seed and configuration, brings up the libp2p transport, and serves
// RFC003 swap requests until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/klingon-exchange/cnd/internal/comit"
	"github.com/klingon-exchange/cnd/internal/config"
	"github.com/klingon-exchange/cnd/internal/httpapi"
	"github.com/klingon-exchange/cnd/internal/rfc003"
	"github.com/klingon-exchange/cnd/internal/seed"
	"github.com/klingon-exchange/cnd/internal/spawner"
	"github.com/klingon-exchange/cnd/internal/swapstore"
	"github.com/klingon-exchange/cnd/internal/taskrunner"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.cndd", "Data directory")
		configPath  = flag.String("config", "", "Config file path (default: <data-dir>/cndd.toml)")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		workers     = flag.Int("workers", 8, "Task pool size")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("cndd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	resolvedDataDir := expandPath(*dataDir)
	if err := os.MkdirAll(resolvedDataDir, 0700); err != nil {
		log.Fatal("failed to create data directory", "error", err)
	}

	resolvedConfigPath := *configPath
	if resolvedConfigPath == "" {
		resolvedConfigPath = filepath.Join(resolvedDataDir, "cndd.toml")
	}

	var file config.File
	if _, err := os.Stat(resolvedConfigPath); err == nil {
		file, err = config.ReadFile(resolvedConfigPath)
		if err != nil {
			log.Fatal("failed to read config", "path", resolvedConfigPath, "error", err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatal("failed to stat config", "path", resolvedConfigPath, "error", err)
	}

	settings, err := config.FromFile(file)
	if err != nil {
		log.Fatal("invalid config", "error", err)
	}
	if file.Data == nil {
		settings.DataDir = resolvedDataDir
	}
	log.Info("config resolved", "data_dir", settings.DataDir, "listen", settings.Listen)

	root, err := seed.LoadOrGenerate(settings.DataDir)
	if err != nil {
		log.Fatal("failed to load or generate seed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := taskrunner.NewPool(ctx, *workers, 256)
	defer pool.Stop()

	store := swapstore.New()

	h, err := comit.NewHost(settings.DataDir, settings.Listen)
	if err != nil {
		log.Fatal("failed to start libp2p host", "error", err)
	}
	defer h.Close()
	log.Info("libp2p host started", "peer_id", h.ID().String())

	ps, err := comit.NewPubSub(ctx, h)
	if err != nil {
		log.Fatal("failed to start pubsub", "error", err)
	}
	announcer, err := comit.NewAnnouncer(ctx, ps)
	if err != nil {
		log.Fatal("failed to start announcer", "error", err)
	}
	defer announcer.Close()

	connectors, err := newLedgerConnectors(settings)
	if err != nil {
		log.Fatal("failed to wire ledger connectors", "error", err)
	}

	transport := comit.NewTransport(h)
	sp := spawner.New(root, store, pool, connectors.createLedgerEvents)

	transport.SetRequestHandler(func(ctx context.Context, from peer.ID, req rfc003.Request) rfc003.Response {
		return handleIncomingRequest(ctx, log, root, sp, req)
	})
	transport.Start()
	defer transport.Stop()

	go func() {
		for headers := range announcer.Announcements(ctx) {
			log.Info("observed gossiped swap announcement", "swap_id", headers.ID, "alpha_ledger", headers.AlphaLedger, "beta_ledger", headers.BetaLedger)
		}
	}()

	api := httpapi.New(root, store, sp, transport, announcer, settings.AllowedOrigins)
	if err := api.Start(fmt.Sprintf("%s:%d", settings.HTTPAddress, settings.HTTPPort)); err != nil {
		log.Fatal("failed to start http api", "error", err)
	}
	defer api.Stop()

	log.Info("cndd started", "version", version, "commit", commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
}

func expandPath(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
