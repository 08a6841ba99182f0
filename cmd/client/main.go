// Command client is a terminal relay-chat client. Lines typed on stdin are
// sent as messages; "/nick <name>" chooses the nickname once.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/astromechza/relay-chat/pkg/chat"
	"github.com/astromechza/relay-chat/pkg/config"
)

const clearScreen = "\033[H\033[2J"

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	cfg, err := config.ParseClient(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	session, err := chat.NewSession(chat.Options{
		BaseUrl:        cfg.BaseUrl,
		SocketUrl:      cfg.SocketUrl,
		PollPeriod:     cfg.PollPeriod,
		RetryDelay:     cfg.RetryDelay,
		ReconnectDelay: cfg.ReconnectDelay,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	if cfg.Nickname != "" {
		if err := session.SetIdentity(cfg.Nickname); err != nil {
			return fmt.Errorf("failed to set nickname: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = session.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		drawContinuously(ctx, session.Engine(), os.Stdout, cfg.Width)
	}()

	// stdin cannot be interrupted, so the reader is not waited on
	go func() {
		defer stop()
		readInput(ctx, session, os.Stdin, os.Stdout)
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

func drawContinuously(ctx context.Context, engine *chat.Engine, out io.Writer, width int) {
	fmt.Fprint(out, clearScreen+render(engine.Snapshot(), width))
	for {
		select {
		case <-engine.Changes():
			fmt.Fprint(out, clearScreen+render(engine.Snapshot(), width))
		case <-ctx.Done():
			return
		}
	}
}

// sender is the part of a session the input loop drives.
type sender interface {
	SetIdentity(label string) error
	Send(ctx context.Context, body string) error
}

// readInput handles one line at a time until in is exhausted or ctx ends.
// Rejected input is reported on out and does not stop the loop.
func readInput(ctx context.Context, s sender, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := handleLine(ctx, s, scanner.Text()); err != nil {
			fmt.Fprintln(out, explain(err))
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("failed to read input", "err", err)
	}
}

func handleLine(ctx context.Context, s sender, text string) error {
	if name, ok := strings.CutPrefix(text, "/nick"); ok && (name == "" || name[0] == ' ') {
		return s.SetIdentity(strings.TrimSpace(name))
	}
	return s.Send(ctx, text)
}

func explain(err error) string {
	switch {
	case errors.Is(err, chat.ErrIdentityUnset):
		return "choose a nickname first with /nick <name>"
	case errors.Is(err, chat.ErrIdentityLocked):
		return "your nickname is already set"
	case errors.Is(err, chat.ErrEmptyIdentity):
		return "nickname cannot be empty"
	case errors.Is(err, chat.ErrSessionClosed):
		return "the session has ended"
	}
	return err.Error()
}
