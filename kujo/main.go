// Package kujo serves the guide's state over HTTP: the latest snapshot, the journal and a stream of snapshots.
package kujo

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/journal"
	"nyiyui.ca/hato/shingo/tal/guide"
)

const (
	streamSnapshot = "snapshot"
	defaultLimit   = 100
	maxLimit       = 1000
)

// JournalReader is the read side of a journal.
type JournalReader interface {
	Since(seq uint64, limit int) ([]journal.Entry, error)
}

type Server struct {
	g    *guide.Guide
	j    JournalReader
	s    *sse.Server
	r    chi.Router
	h    http.Handler
	ch   chan guide.Snapshot
	done chan struct{}
}

// NewServer returns a Server for g. j may be nil if there is no journal.
func NewServer(g *guide.Guide, j JournalReader) *Server {
	s := &Server{
		g:    g,
		j:    j,
		s:    sse.New(),
		ch:   make(chan guide.Snapshot),
		done: make(chan struct{}),
	}
	s.s.AutoReplay = false
	s.s.CreateStream(streamSnapshot)
	s.r = chi.NewRouter()
	s.r.Get("/snapshot", s.handleSnapshot)
	s.r.Get("/journal", s.handleJournal)
	s.r.Get("/events", s.s.ServeHTTP)
	s.h = s.r
	g.SnapshotMux().Subscribe("kujo", s.ch)
	go s.forward()
	return s
}

func (s *Server) forward() {
	defer close(s.done)
	for gs := range s.ch {
		data, err := json.Marshal(gs)
		if err != nil {
			zap.S().Errorw("kujo: marshal snapshot", "err", err)
			continue
		}
		s.s.TryPublish(streamSnapshot, &sse.Event{Data: data})
	}
}

// Close stops streaming snapshots.
func (s *Server) Close() {
	s.g.SnapshotMux().Unsubscribe(s.ch)
	close(s.ch)
	<-s.done
	s.s.Close()
}

// AllowOrigins lets browser pages from origins read the API.
// Call it before serving.
func (s *Server) AllowOrigins(origins []string) {
	if len(origins) == 0 {
		s.h = s.r
		return
	}
	s.h = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(s.r)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.h.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Warnw("kujo: write response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.g.Snapshot())
}

type journalResponse struct {
	Entries []journal.Entry `json:"entries"`
	// Next is the since to pass to get the entries after these.
	Next uint64 `json:"next"`
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.j == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no journal"})
		return
	}
	q := r.URL.Query()
	var since uint64
	if v := q.Get("since"); v != "" {
		var err error
		since, err = strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad since: " + err.Error()})
			return
		}
	}
	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad limit"})
			return
		}
		limit = min(n, maxLimit)
	}
	es, err := s.j.Since(since, limit)
	if err != nil {
		zap.S().Errorw("kujo: read journal", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "read journal failed"})
		return
	}
	res := journalResponse{Entries: es, Next: since}
	if len(es) > 0 {
		res.Next = es[len(es)-1].Seq
	}
	if res.Entries == nil {
		res.Entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, res)
}
