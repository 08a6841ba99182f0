// Package store keeps the message backlog as an automerge document with an
// append-only "messages" list, snapshotted into sqlite.
package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/relay-chat/pkg/chat"
)

const messagesKey = "messages"

type Store struct {
	database *sql.DB
	id       string
	log      *slog.Logger

	mu  sync.Mutex
	doc *automerge.Doc
}

// Open ensures the stores table exists and loads the document for id,
// creating an empty one when there is none.
func Open(ctx context.Context, database *sql.DB, id string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{database: database, id: id, log: log.With("component", "store", "store", id)}

	if _, err := database.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS stores (
    	id text not null primary key,
        content text not null
		)`,
	); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	var rawContent string
	err := database.QueryRowContext(ctx, `SELECT content FROM stores WHERE id = ?`, id).Scan(&rawContent)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc, err := NewDoc()
		if err != nil {
			return nil, err
		}
		if _, err := database.ExecContext(ctx,
			`INSERT INTO stores (id, content) VALUES (?, ?)`,
			id, base64.StdEncoding.EncodeToString(doc.Save()),
		); err != nil {
			return nil, fmt.Errorf("failed to insert store: %w", err)
		}
		s.doc = doc
		s.log.Info("created empty store")
	case err != nil:
		return nil, fmt.Errorf("failed to query: %w", err)
	default:
		raw, err := base64.StdEncoding.DecodeString(rawContent)
		if err != nil {
			return nil, fmt.Errorf("failed to decode: %w", err)
		}
		doc, err := automerge.Load(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to load doc: %w", err)
		}
		s.doc = doc
		n, _ := Len(doc)
		s.log.Info("loaded store", "messages", n, "heads", doc.Heads())
	}
	return s, nil
}

// NewDoc returns a document holding an empty messages list.
func NewDoc() (*automerge.Doc, error) {
	doc := automerge.New()
	if err := doc.Path(messagesKey).Set([]interface{}{}); err != nil {
		return nil, fmt.Errorf("failed to create messages list: %w", err)
	}
	if _, err := doc.Commit("init", automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, fmt.Errorf("failed to commit doc: %w", err)
	}
	return doc, nil
}

// Len is the number of messages in doc.
func Len(doc *automerge.Doc) (int, error) {
	v, err := doc.Path(messagesKey).Get()
	if err != nil {
		return 0, err
	}
	if v.Kind() != automerge.KindList {
		return 0, nil
	}
	return v.List().Len(), nil
}

// Messages reads every message in doc in insertion order.
func Messages(doc *automerge.Doc) ([]chat.ArchivedMessage, error) {
	n, err := Len(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	out := make([]chat.ArchivedMessage, 0, n)
	for i := 0; i < n; i++ {
		message, err := automerge.As[string](doc.Path(messagesKey, i, "message").Get())
		if err != nil {
			return nil, fmt.Errorf("failed to read message %d: %w", i, err)
		}
		from, err := automerge.As[string](doc.Path(messagesKey, i, "from").Get())
		if err != nil {
			return nil, fmt.Errorf("failed to read sender %d: %w", i, err)
		}
		out = append(out, chat.ArchivedMessage{Message: message, From: from})
	}
	return out, nil
}

func (s *Store) Append(m chat.ArchivedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.doc.Path(messagesKey).List().Append(map[string]interface{}{
		"message": m.Message,
		"from":    m.From,
	}); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if _, err := s.doc.Commit("save message from " + m.From); err != nil {
		return fmt.Errorf("failed to commit doc: %w", err)
	}
	return nil
}

func (s *Store) List() ([]chat.ArchivedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Messages(s.doc)
}

// Fork returns an independent copy of the document for readers that need
// its history, such as the shutdown dump.
func (s *Store) Fork() (*automerge.Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Fork()
}

// Backup writes the current document to sqlite if it changed. It reports
// whether a row was updated.
func (s *Store) Backup(ctx context.Context) (bool, error) {
	s.mu.Lock()
	newContent := base64.StdEncoding.EncodeToString(s.doc.Save())
	heads := s.doc.Heads()
	s.mu.Unlock()

	res, err := s.database.ExecContext(
		ctx, `UPDATE stores SET content = ? WHERE id = ? AND content != ? `,
		newContent,
		s.id,
		newContent,
	)
	if err != nil {
		return false, fmt.Errorf("failed to backup doc in database: %w", err)
	}
	if r, _ := res.RowsAffected(); r > 0 {
		s.log.Info("backed up", "heads", heads)
		return true, nil
	}
	return false, nil
}

// BackupContinuously backs up on every tick until ctx is cancelled.
func (s *Store) BackupContinuously(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if _, err := s.Backup(ctx); err != nil {
				s.log.Error("failed to backup", "err", err)
			}
		case <-ctx.Done():
			s.log.Info("stopping scheduled backup")
			return
		}
	}
}
