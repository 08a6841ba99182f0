package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/astromechza/relay-chat/pkg/chat"
)

// MessageStore is the durable backlog behind /api/messages and /api/save.
type MessageStore interface {
	Append(m chat.ArchivedMessage) error
	List() ([]chat.ArchivedMessage, error)
}

type Server struct {
	Store           MessageStore
	Hub             *Hub
	Signal          *Signal
	LongPollTimeout time.Duration
	Logger          *slog.Logger
}

// Router serves the pull endpoints under /api/ and the push channel at /socket.
func (s *Server) Router() http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.LongPollTimeout <= 0 {
		s.LongPollTimeout = 30 * time.Second
	}

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			s.Logger.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Use(withCORS)

	r.Methods(http.MethodGet).Path("/up").HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("OK"))
	})
	r.Methods(http.MethodGet).Path("/socket").Handler(s.Hub)

	api := r.PathPrefix("/api").Subrouter()
	api.Methods(http.MethodGet).Path("/messages").HandlerFunc(s.getMessages)
	api.Methods(http.MethodPost).Path("/save").HandlerFunc(s.saveMessage)
	api.Methods(http.MethodGet).Path("/notification").HandlerFunc(s.getNotification)
	api.Methods(http.MethodPost).Path("/notification").HandlerFunc(s.setNotification)
	api.Methods(http.MethodGet).Path("/userCount").HandlerFunc(s.getUserCount)
	api.Methods(http.MethodOptions).PathPrefix("/").HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	return r
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Access-Control-Allow-Origin", "*")
		writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(writer, request)
	})
}

func (s *Server) writeJSON(writer http.ResponseWriter, status int, v interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		s.Logger.Error("failed to write", "err", err)
	}
}

func (s *Server) getMessages(writer http.ResponseWriter, _ *http.Request) {
	messages, err := s.Store.List()
	if err != nil {
		s.Logger.Error("failed to list messages", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []chat.ArchivedMessage{}
	}
	s.writeJSON(writer, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *Server) saveMessage(writer http.ResponseWriter, request *http.Request) {
	var input chat.ArchivedMessage
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		s.Logger.Error("failed to decode body", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(input.From) == "" {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.Store.Append(input); err != nil {
		s.Logger.Error("failed to persist message", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusCreated)
}

func (s *Server) getNotification(writer http.ResponseWriter, request *http.Request) {
	value := s.Signal.Wait(request.Context(), s.LongPollTimeout)
	if request.Context().Err() != nil {
		return
	}
	s.writeJSON(writer, http.StatusOK, map[string]json.RawMessage{"notification": value})
}

func (s *Server) setNotification(writer http.ResponseWriter, request *http.Request) {
	var input struct {
		Notification json.RawMessage `json:"notification"`
	}
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil || len(input.Notification) == 0 {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	s.Signal.Set(input.Notification)
	writer.WriteHeader(http.StatusNoContent)
}

func (s *Server) getUserCount(writer http.ResponseWriter, _ *http.Request) {
	s.writeJSON(writer, http.StatusOK, map[string]int{"userCount": s.Hub.Count()})
}
