package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/automerge/automerge-go"

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
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the dump file to read")
	}
	f, err := os.Open(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()
	buff, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	doc, err := automerge.Load(buff)
	if err != nil {
		return fmt.Errorf("failed to load doc: %w", err)
	}
	slog.Info("loaded heads", "heads", doc.Heads())

	messages, err := store.Messages(doc)
	if err != nil {
		return err
	}
	for i, m := range messages {
		slog.Info("message", "i", fmt.Sprintf("%4d", i), "from", m.From, "message", m.Message)
	}

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", change.Hash(), "actor", change.ActorID(), "dep", change.Dependencies())
	}

	return viz.WriteDot(doc, os.Stdout)
}
