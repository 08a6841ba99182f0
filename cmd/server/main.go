// Command server is a reference relay for relay-chat clients. It serves the
// message backlog from an automerge document kept in sqlite, fans live messages
// out over /socket and holds notification long-polls.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/relay-chat/pkg/config"
	"github.com/astromechza/relay-chat/pkg/relay"
	"github.com/astromechza/relay-chat/pkg/store"
	"github.com/astromechza/relay-chat/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.ParseServer(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Opening database", "path", cfg.Database)
	db, err := sql.Open("sqlite3", cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	messages, err := store.Open(ctx, db, cfg.StoreId, logger)
	if err != nil {
		return err
	}

	hub := relay.NewHub(logger)
	s := &relay.Server{
		Store:           messages,
		Hub:             hub,
		Signal:          relay.NewSignal(),
		LongPollTimeout: cfg.LongPollTimeout,
		Logger:          logger,
	}

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		messages.BackupContinuously(ctx, cfg.BackupPeriod)
	}()

	httpServer := &http.Server{Addr: cfg.Addr, Handler: s.Router()}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()
	hub.Close()
	_ = httpServer.Close()

	wg.Wait()

	if _, err := messages.Backup(context.Background()); err != nil {
		slog.Error("failed final backup", "err", err)
	}
	dump(messages, cfg.DumpDir)
	return nil
}

// dump writes the document and a render of its change graph for cmd/debug.
func dump(messages *store.Store, dir string) {
	doc, err := messages.Fork()
	if err != nil {
		slog.Error("failed to fork for dump", "err", err)
		return
	}
	if dir == "" {
		dir = os.TempDir()
	}
	tf := filepath.Join(dir, doc.ActorID()+".automerge")
	if err := os.WriteFile(tf, doc.Save(), 0o644); err != nil {
		slog.Error("failed to dump", "err", err)
	} else {
		slog.Info("dumped", "path", tf)
	}
	if svgPath, err := viz.RenderToDir(doc, dir); err != nil {
		slog.Error("failed to render", "err", err)
	} else {
		slog.Info("rendered", "path", "file://"+svgPath)
	}
}
