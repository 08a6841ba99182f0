// Package config parses client and relay configuration from the environment,
// then lets command line flags override it.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Client struct {
	BaseUrl        string        `env:"RELAY_CHAT_BASE_URL"        envDefault:"http://localhost:4000/api/"`
	SocketUrl      string        `env:"RELAY_CHAT_SOCKET_URL"      envDefault:"ws://localhost:4000/socket"`
	Nickname       string        `env:"RELAY_CHAT_NICKNAME"`
	PollPeriod     time.Duration `env:"RELAY_CHAT_POLL_PERIOD"     envDefault:"5s"`
	RetryDelay     time.Duration `env:"RELAY_CHAT_RETRY_DELAY"     envDefault:"1s"`
	ReconnectDelay time.Duration `env:"RELAY_CHAT_RECONNECT_DELAY" envDefault:"1s"`
	RequestTimeout time.Duration `env:"RELAY_CHAT_REQUEST_TIMEOUT" envDefault:"60s"`
	Width          int           `env:"RELAY_CHAT_WIDTH"           envDefault:"80"`
	LogLevel       string        `env:"RELAY_CHAT_LOG_LEVEL"       envDefault:"info"`
}

type Server struct {
	Addr            string        `env:"RELAY_CHAT_ADDR"              envDefault:"localhost:4000"`
	Database        string        `env:"RELAY_CHAT_DATABASE"          envDefault:"relay.sqlite3"`
	StoreId         string        `env:"RELAY_CHAT_STORE_ID"          envDefault:"default"`
	BackupPeriod    time.Duration `env:"RELAY_CHAT_BACKUP_PERIOD"     envDefault:"5s"`
	LongPollTimeout time.Duration `env:"RELAY_CHAT_LONG_POLL_TIMEOUT" envDefault:"30s"`
	DumpDir         string        `env:"RELAY_CHAT_DUMP_DIR"`
	LogLevel        string        `env:"RELAY_CHAT_LOG_LEVEL"         envDefault:"info"`
}

func ParseClient(fs *flag.FlagSet, args []string) (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.BaseUrl, "base-url", cfg.BaseUrl, "base url of the pull endpoints")
	fs.StringVar(&cfg.SocketUrl, "socket-url", cfg.SocketUrl, "websocket url of the push channel")
	fs.StringVar(&cfg.Nickname, "nickname", cfg.Nickname, "nickname to lock at startup")
	fs.DurationVar(&cfg.PollPeriod, "poll-period", cfg.PollPeriod, "presence poll period")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "delay before re-issuing a failed notification poll")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "delay before redialing the push channel")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "upper bound for a single request")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "terminal width used to align own messages")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return Client{}, fmt.Errorf("parse flags: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Client) Validate() error {
	var errs []error
	if c.BaseUrl == "" {
		errs = append(errs, errors.New("base url is required"))
	}
	if c.SocketUrl == "" {
		errs = append(errs, errors.New("socket url is required"))
	}
	if c.PollPeriod <= 0 {
		errs = append(errs, fmt.Errorf("poll period must be positive, got %s", c.PollPeriod))
	}
	if c.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry delay must be positive, got %s", c.RetryDelay))
	}
	if c.Width <= 0 {
		errs = append(errs, fmt.Errorf("width must be positive, got %d", c.Width))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func ParseServer(fs *flag.FlagSet, args []string) (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "the address to listen on")
	fs.StringVar(&cfg.Database, "database", cfg.Database, "sqlite database file")
	fs.StringVar(&cfg.StoreId, "store", cfg.StoreId, "id of the message store row")
	fs.DurationVar(&cfg.BackupPeriod, "backup-period", cfg.BackupPeriod, "how often the message store is backed up")
	fs.DurationVar(&cfg.LongPollTimeout, "long-poll-timeout", cfg.LongPollTimeout, "how long a notification request is held open")
	fs.StringVar(&cfg.DumpDir, "dump-dir", cfg.DumpDir, "directory for the shutdown dump (defaults to the temp dir)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return Server{}, fmt.Errorf("parse flags: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Server) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.BackupPeriod <= 0 {
		errs = append(errs, fmt.Errorf("backup period must be positive, got %s", c.BackupPeriod))
	}
	if c.LongPollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("long-poll timeout must be positive, got %s", c.LongPollTimeout))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewLogger builds the text logger both binaries install as the default.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
